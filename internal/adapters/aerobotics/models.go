package aerobotics

// page is the envelope of every list endpoint.
type page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type survey struct {
	ID        int64   `json:"id"`
	OrchardID int64   `json:"orchard_id"`
	Date      string  `json:"date"`
	Hectares  float64 `json:"hectares"`
	Polygon   string  `json:"polygon"`
}

type treeSurvey struct {
	ID        int64   `json:"id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	NDRE      float64 `json:"ndre"`
	NDVI      float64 `json:"ndvi"`
	Volume    float64 `json:"volume"`
	Area      float64 `json:"area"`
	RowIndex  *int    `json:"row_index"`
	TreeIndex *int    `json:"tree_index"`
	SurveyID  int64   `json:"survey_id"`
}
