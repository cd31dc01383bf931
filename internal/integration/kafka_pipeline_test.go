//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/climate-favorability/internal/adapter/csvio"
	"github.com/couchcryptid/climate-favorability/internal/adapter/kafka"
	"github.com/couchcryptid/climate-favorability/internal/adapter/schemafile"
	"github.com/couchcryptid/climate-favorability/internal/batch"
	"github.com/couchcryptid/climate-favorability/internal/config"
	"github.com/couchcryptid/climate-favorability/internal/domain"
	"github.com/couchcryptid/climate-favorability/internal/model"
	"github.com/couchcryptid/climate-favorability/internal/observability"
	"github.com/couchcryptid/climate-favorability/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testSourceTopic = "test-requests"
	testSinkTopic   = "test-predictions"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func mockDataPath(name string) string {
	return filepath.Join("..", "..", "data", "mock", name)
}

func loadMockRequests(t *testing.T) []domain.InferenceRequest {
	t.Helper()
	data, err := os.ReadFile(mockDataPath("inference_requests.json"))
	require.NoError(t, err)
	var reqs []domain.InferenceRequest
	require.NoError(t, json.Unmarshal(data, &reqs))
	return reqs
}

// trainedTransformer builds the schema and model from the mock raw export and
// serves the schema from a file, as the predictor service does.
func trainedTransformer(ctx context.Context, t *testing.T) (*pipeline.PredictionTransformer, *domain.FeatureSchema) {
	t.Helper()
	raw, err := csvio.OpenRawTable(mockDataPath("raw_weather.csv"))
	require.NoError(t, err)
	built, err := batch.Run(ctx, raw, batch.Options{Builder: domain.DefaultBuilderConfig(), Labeled: true}, discardLogger())
	require.NoError(t, err)
	clf, err := model.Train(built.Table, model.DefaultTrainConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "feature_schema.json")
	require.NoError(t, schemafile.Save(path, built.Table.Schema))
	store := schemafile.NewCachedStore(path, 4, nil)

	return pipeline.NewTransformer(store, built.Table.Schema, clf, nil, discardLogger(), observability.NewMetricsForTesting()), built.Table.Schema
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func publishRequests(ctx context.Context, t *testing.T, broker string, reqs []domain.InferenceRequest) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(reqs))
	for _, req := range reqs {
		payload, err := json.Marshal(req)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(req.ID), Value: payload, Time: req.ObservedAt})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// predictionMessage holds a deserialized message read from the sink topic.
type predictionMessage struct {
	Prediction domain.Prediction
	Key        string
	Headers    map[string]string
}

// readPrediction reads a single message from the sink consumer and deserializes it.
func readPrediction(ctx context.Context, t *testing.T, consumer *kafkago.Reader) predictionMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var pred domain.Prediction
	require.NoError(t, json.Unmarshal(msg.Value, &pred), "unmarshal sink message")

	return predictionMessage{Prediction: pred, Key: string(msg.Key), Headers: headers}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a request through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	req := loadMockRequests(t)[0]
	publishRequests(ctx, t, broker, []domain.InferenceRequest{req})

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var extracted []domain.RawEvent
	for {
		var err error
		extracted, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(extracted) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, extracted, 1)
	raw := extracted[0]
	assert.Equal(t, []byte(req.ID), raw.Key)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	transformer, schema := trainedTransformer(ctx, t)
	out, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	pm := readPrediction(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, req.ID, pm.Key)
	assert.Equal(t, schema.Version(), pm.Headers["schema_version"])
	_, err = time.Parse(time.RFC3339, pm.Headers["predicted_at"])
	assert.NoError(t, err, "predicted_at should be valid RFC3339")
	assert.Equal(t, strconv.FormatBool(pm.Prediction.Favorable), pm.Headers["favorable"])
	assert.Equal(t, req.ID, pm.Prediction.RequestID)
	assert.Empty(t, pm.Prediction.Gaps)
}

// TestPipelineEndToEnd wires the full pipeline (Reader → Transformer → Writer) with
// real Kafka and verifies every mock request is answered.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	reqs := loadMockRequests(t)
	publishRequests(ctx, t, broker, reqs)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	transformer, schema := trainedTransformer(ctx, t)

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make(map[string]predictionMessage, len(reqs))
	for len(received) < len(reqs) {
		pm := readPrediction(ctx, t, consumer)
		received[pm.Key] = pm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, req := range reqs {
		pm, ok := received[req.ID]
		require.True(t, ok, "missing prediction for %s", req.ID)
		assert.Equal(t, schema.Version(), pm.Prediction.SchemaVersion)
		assert.Equal(t, domain.Summary(pm.Prediction.Label), pm.Prediction.Summary)
		if _, hasUV := req.Observation[domain.FieldUVIndex]; hasUV {
			assert.Empty(t, pm.Prediction.Gaps, req.ID)
		} else {
			assert.NotEmpty(t, pm.Prediction.Gaps, req.ID)
		}
	}
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid messages.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	valid := loadMockRequests(t)[0]
	validPayload, err := json.Marshal(valid)
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("empty"), Value: []byte(`{"observation":{}}`)},
		kafkago.Message{Key: []byte(valid.ID), Value: validPayload},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	transformer, _ := trainedTransformer(ctx, t)

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	// Only the valid message should appear on the sink topic.
	consumer := sinkConsumer(t, broker)
	pm := readPrediction(ctx, t, consumer)
	assert.Equal(t, valid.ID, pm.Key)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
