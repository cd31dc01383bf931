// Package domain turns weather observations into model-ready feature vectors
// and keeps the training and inference paths on the same feature schema.
//
// # Data Source
//
// Historical records come from a gridded weather API export (one row per
// location and hour). Ingestion (package csvio) renames the provider columns to
// the canonical field names used everywhere in this package:
//
//	t_2m:C                    →  Temperature
//	absolute_humidity_2m:gm3  →  Absolute_Humidity
//	heat_index:C              →  Heat_Index
//	prob_precip_1h:p          →  Precipitation_Probability
//	uv:idx                    →  UV_Index
//	evapotranspiration_1h:mm  →  Evapotranspiration
//	drought_index:idx         →  Drought_Index
//
// # Batch Path
//
//	Impute       numeric gaps → column median, categorical gaps → column mode
//	DeriveLabel  favorable iff 15 < T < 30, 5 < H < 15, UV < 6, P < 30 (raw values)
//	Build        raw | rolling {3,7,14} | lag {1,3,7} | interactions
//
// Windows and lags count records, not wall-clock hours, even though the
// generated names carry an "h" suffix ("Temperature_rolling_3h"). The series is
// sorted by timestamp before any window is computed. Undefined cells are filled
// with the mean of their output column, which is a different policy from the
// imputer's median.
//
// # Feature Schema
//
// The schema is captured from the builder's output columns and is the only
// contract between training and inference. Its version is a SHA-256 of the
// ordered entries (see [schemaVersion]); the model artifact records the
// version it was trained on, so a schema change without retraining surfaces as
// an [AlignmentError] instead of a silently misaligned vector.
//
// # Inference Path
//
// [Synthesize] reconstructs a vector from one observation with no history.
// Rolling and lag entries reuse the observation's current value of their base
// field. This point-history approximation guarantees shape, not statistical
// equivalence with the training rows. Entries whose fields are absent become 0
// and are reported as [FeatureSynthesisGap].
//
// # Normalization
//
// Standardization is opt-in ([BuilderConfig].Standardize). When enabled the
// per-feature mean and deviation are stored on the schema and applied on both
// paths, so the synthesized vector lives in the same space as the training
// table.
package domain
