package gps

// Fix is the last RMC fix seen on the serial port, in the shape published
// as JSON.
type Fix struct {
	Time       string  `json:"time"`        // e.g. "12:34:56"
	Date       string  `json:"date"`        // e.g. "06/12/25"
	Latitude   float64 `json:"lat"`         // decimal degrees
	Longitude  float64 `json:"lon"`         // decimal degrees
	SpeedKnots float64 `json:"speed_knots"` // speed over ground
	CourseDeg  float64 `json:"course_deg"`  // course over ground
	Validity   string  `json:"validity"`    // "A" (valid) / "V" (void)

	// Declination is the RMC magnetic variation, east positive (degrees).
	// HasDeclination is false when the receiver leaves the field empty.
	Declination    float64 `json:"declination_deg"`
	HasDeclination bool    `json:"has_declination"`
}
