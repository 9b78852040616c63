// Package types contains common types used across the application
package types

// Feature column names, exactly as the upload must spell them.
const (
	SepalLength = "sepal length (cm)"
	SepalWidth  = "sepal width (cm)"
	PetalLength = "petal length (cm)"
	PetalWidth  = "petal width (cm)"
)

// PredictedClassColumn names the derived most-likely-class column.
const PredictedClassColumn = "predicted_class"

// Download file names offered by the interactive surface.
const (
	SampleFileName      = "iris_sample_data.csv"
	PredictionsFileName = "iris_predictions.csv"
)

// RequiredColumns returns the canonical feature order. A fresh slice is
// returned so callers cannot reorder the shared definition.
func RequiredColumns() []string {
	return []string{SepalLength, SepalWidth, PetalLength, PetalWidth}
}

// ClassNames returns the fixed class order of the model output.
func ClassNames() []string {
	return []string{"setosa", "versicolor", "virginica"}
}

// SampleRows are the illustrative rows of the downloadable template, one per species.
func SampleRows() [][]float64 {
	return [][]float64{
		{5.1, 3.5, 1.4, 0.2},
		{6.3, 3.3, 4.7, 1.6},
		{6.5, 3.0, 5.8, 2.2},
	}
}

// Schema describes the upload contract for API clients.
type Schema struct {
	RequiredColumns []string `json:"required_columns"`
	Classes         []string `json:"classes"`
	OutputColumns   []string `json:"output_columns"`
	Encoding        string   `json:"encoding"`
	Separator       string   `json:"separator"`
	HeaderRequired  bool     `json:"header_required"`
}

// DefaultSchema returns the upload contract.
func DefaultSchema() Schema {
	return Schema{
		RequiredColumns: RequiredColumns(),
		Classes:         ClassNames(),
		OutputColumns:   append(ClassNames(), PredictedClassColumn),
		Encoding:        "utf-8",
		Separator:       ",",
		HeaderRequired:  true,
	}
}
