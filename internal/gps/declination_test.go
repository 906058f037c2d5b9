package gps

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
)

// sentence wraps an NMEA body in '$' and its XOR checksum.
func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func TestHandleLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		updated bool
		declDeg float64
		hasDecl bool
	}{
		{"East", sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,E"), true, 3.1, true},
		{"West", sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,004.2,W"), true, -4.2, true},
		{"NoVariation", sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,"), true, 0, false},
		{"Void", sentence("GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,E"), false, 0, false},
		{"OtherSentence", sentence("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"), false, 0, false},
		{"BadChecksum", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,E*00", false, 0, false},
		{"NotNMEA", "hello", false, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewDeclinationReader()
			assert.Equal(t, tc.updated, r.HandleLine(tc.line+"\r\n"))

			d, ok := r.Declination()
			assert.Equal(t, tc.hasDecl, ok)
			assert.InDelta(t, geom.Rad(tc.declDeg), d, 1e-12)

			fix, ok := r.Fix()
			assert.Equal(t, tc.updated, ok)
			if tc.updated {
				assert.Equal(t, "A", fix.Validity)
				assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
				assert.InDelta(t, 84.4, fix.CourseDeg, 1e-9)
			}
		})
	}
}

func TestVoidFixKeepsLastDeclination(t *testing.T) {
	r := NewDeclinationReader()
	require.True(t, r.HandleLine(sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,E")))
	assert.False(t, r.HandleLine(sentence("GPRMC,123520,V,,,,,,,230394,,")))

	d, ok := r.Declination()
	require.True(t, ok)
	assert.InDelta(t, geom.Rad(3.1), d, 1e-12)
}

func TestRunReadsUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		"garbage",
		sentence("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,E"),
		sentence("GPRMC,123520,A,4807.038,N,01131.000,E,022.4,084.4,230394,001.0,W"),
	}, "\r\n")

	r := NewDeclinationReader()
	var fixes []Fix
	require.NoError(t, r.Run(context.Background(), strings.NewReader(input), func(f Fix) {
		fixes = append(fixes, f)
	}))
	require.Len(t, fixes, 2)
	assert.InDelta(t, 3.1, fixes[0].Declination, 1e-12)
	assert.InDelta(t, -1, fixes[1].Declination, 1e-12)
	d, ok := r.Declination()
	require.True(t, ok)
	assert.InDelta(t, geom.Rad(-1), d, 1e-12)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, strings.NewReader(input), nil), context.Canceled)
}

func TestUpdateFromTopic(t *testing.T) {
	r := NewDeclinationReader()
	r.Update(Fix{Validity: "V", Declination: 7, HasDeclination: true})
	_, ok := r.Declination()
	assert.False(t, ok)

	r.Update(Fix{Validity: "A", Declination: -12.5, HasDeclination: true})
	d, ok := r.Declination()
	require.True(t, ok)
	assert.InDelta(t, geom.Rad(-12.5), d, 1e-12)

	r.Update(Fix{Validity: "A"})
	_, ok = r.Declination()
	assert.False(t, ok)
}
