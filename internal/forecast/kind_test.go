package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "Session", KindSession.Label())
	assert.Equal(t, "Weekly", KindWeekly.Label())
	assert.Equal(t, 5*time.Hour, KindSession.Window())
	assert.Equal(t, 168*time.Hour, KindWeekly.Window())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}

func TestClassify_Session(t *testing.T) {
	tests := []struct {
		name        string
		utilization float64
		projected   float64
		want        Severity
	}{
		{"low", 20, 50, Green},
		{"exactly 90 projected", 40, 90, Green},
		{"tight", 40, 95, Yellow},
		{"exactly 100 projected", 60, 100, Yellow},
		{"over projected", 60, 130, Red},
		{"saturated and over", 91, 101, RedBlink},
		{"exactly 90 utilization", 90, 150, Red},
		{"exactly 200 projected", 30, 200, Red},
		{"implausible projection", 30, 200.5, RedBlink},
		{"high utilization but under", 95, 99, Yellow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindSession.Classify(tt.utilization, tt.projected))
		})
	}
}

func TestClassify_Weekly(t *testing.T) {
	tests := []struct {
		name      string
		projected float64
		want      Severity
	}{
		{"low", 10, Green},
		{"exactly 90", 90, Green},
		{"tight", 92, Yellow},
		{"exactly 95", 95, Yellow},
		{"at risk", 97, Red},
		{"exactly 100", 100, Red},
		{"over", 100.01, RedBlink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindWeekly.Classify(0, tt.projected))
		})
	}
}

func TestClassify_ExactlyHundredNeverRed(t *testing.T) {
	for _, util := range []float64{0, 50, 95, 100} {
		assert.Less(t, KindSession.Classify(util, 100), Red)
	}
	assert.NotEqual(t, RedBlink, KindWeekly.Classify(100, 100))
}

func TestClassify_Func(t *testing.T) {
	assert.Equal(t, Red, Classify(KindWeekly, 50, 96))
	assert.Equal(t, Yellow, Classify(KindSession, 50, 96))
}
