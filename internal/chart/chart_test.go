package chart

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

func TestRender(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var points []types.PricePoint
	for i := 0; i < 48; i++ {
		points = append(points, types.PricePoint{Timestamp: t0.Add(time.Duration(i) * time.Hour), Price: 2000 + float64(i%7)*15})
	}

	png, err := Render("ethereum", points)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected PNG output")
	}
}

func TestRenderFlatSeries(t *testing.T) {
	t0 := time.Now()
	points := []types.PricePoint{{Timestamp: t0, Price: 1}, {Timestamp: t0.Add(time.Hour), Price: 1}}
	if _, err := Render("tether", points); err != nil {
		t.Fatalf("render: %v", err)
	}
}

func TestRenderNeedsTwoPoints(t *testing.T) {
	_, err := Render("ethereum", []types.PricePoint{{Timestamp: time.Now(), Price: 1}})
	if !errors.Is(err, ErrNotEnoughPoints) {
		t.Fatalf("expected ErrNotEnoughPoints, got %v", err)
	}
}
