package polyline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospector/internal/model"
)

const googleSample = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var samplePoints = []model.GeoPoint{
	{Lat: 38.5, Lng: -120.2},
	{Lat: 40.7, Lng: -120.95},
	{Lat: 43.252, Lng: -126.453},
}

func TestDecodeGoogleSample(t *testing.T) {
	got, err := Decode(googleSample)
	require.NoError(t, err)
	require.Len(t, got, len(samplePoints))
	for i, p := range samplePoints {
		assert.InDelta(t, p.Lat, got[i].Lat, 1e-9, "lat %d", i)
		assert.InDelta(t, p.Lng, got[i].Lng, 1e-9, "lng %d", i)
	}
}

func TestEncodeGoogleSample(t *testing.T) {
	assert.Equal(t, googleSample, Encode(samplePoints))
}

func TestRoundTrip(t *testing.T) {
	pts := []model.GeoPoint{
		{Lat: 32.77666, Lng: -96.79699},
		{Lat: 32.78001, Lng: -96.80012},
		{Lat: 29.76043, Lng: -95.3698},
		{Lat: 0, Lng: 0},
		{Lat: -33.86882, Lng: 151.20929},
	}
	got, err := Decode(Encode(pts))
	require.NoError(t, err)
	require.Len(t, got, len(pts))
	for i := range pts {
		assert.InDelta(t, pts[i].Lat, got[i].Lat, 1e-5)
		assert.InDelta(t, pts[i].Lng, got[i].Lng, 1e-5)
	}
}

func TestDecodeAllConcatenates(t *testing.T) {
	a := Encode(samplePoints[:2])
	b := Encode(samplePoints[2:])
	got, err := DecodeAll([]string{a, b})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, -126.453, got[2].Lng, 1e-9)
}

func TestDecodeEmptyAndMalformed(t *testing.T) {
	got, err := Decode("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Decode("_p~iF~ps|U_")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode("_p~iF\x01")
	assert.ErrorIs(t, err, ErrMalformed)
}
