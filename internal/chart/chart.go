// Package chart renders a small PNG plot of the cleaned CGM series for
// the result page. The image is generated per request and embedded as a
// data URI; nothing is written to disk.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"pumpadvisor/internal/tabular"
)

// ErrNoSeries is returned when the CGM table holds no plottable points.
var ErrNoSeries = errors.New("no plottable cgm series")

const (
	width   = 640
	height  = 240
	padLeft = 48
	padTop  = 16
	padBot  = 28
	padRt   = 12
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisColor  = color.RGBA{120, 120, 120, 255}
	lineColor  = color.RGBA{31, 119, 180, 255}
	textColor  = color.RGBA{60, 60, 60, 255}
)

type point struct {
	at    time.Time
	value float64
}

// RenderCGM plots glucose readings over time from the cleaned CGM table.
func RenderCGM(t tabular.Table) ([]byte, error) {
	points, err := extractSeries(t)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, background)

	minV, maxV := points[0].value, points[0].value
	for _, p := range points {
		if p.value < minV {
			minV = p.value
		}
		if p.value > maxV {
			maxV = p.value
		}
	}
	if maxV == minV {
		maxV = minV + 1
	}
	start, end := points[0].at, points[len(points)-1].at
	span := end.Sub(start)
	if span <= 0 {
		span = time.Minute
	}

	plotW := float64(width - padLeft - padRt)
	plotH := float64(height - padTop - padBot)

	// Axes.
	drawLine(img, padLeft, padTop, padLeft, height-padBot, axisColor)
	drawLine(img, padLeft, height-padBot, width-padRt, height-padBot, axisColor)

	prevX, prevY := -1, -1
	for _, p := range points {
		x := padLeft + int(plotW*float64(p.at.Sub(start))/float64(span))
		y := padTop + int(plotH*(1-(p.value-minV)/(maxV-minV)))
		if prevX >= 0 {
			drawLine(img, prevX, prevY, x, y, lineColor)
		}
		prevX, prevY = x, y
	}

	label(img, 4, padTop+6, formatValue(maxV))
	label(img, 4, height-padBot, formatValue(minV))
	label(img, padLeft, height-8, start.Format("01-02 15:04"))
	endLabel := end.Format("01-02 15:04")
	label(img, width-padRt-7*len(endLabel), height-8, endLabel)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func extractSeries(t tabular.Table) ([]point, error) {
	tsIdx, err := t.ColumnIndex("Timestamp")
	if err != nil {
		return nil, err
	}
	valIdx := -1
	for i, col := range t.Columns {
		if i != tsIdx && strings.Contains(strings.ToLower(col), "glucose") {
			valIdx = i
			break
		}
	}
	if valIdx == -1 {
		return nil, fmt.Errorf("no glucose column in %s table: %w", t.Name, ErrNoSeries)
	}

	var points []point
	for _, row := range t.Rows {
		if tsIdx >= len(row) || valIdx >= len(row) {
			continue
		}
		at, err := tabular.ParseTimestamp(row[tsIdx])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[valIdx]), 64)
		if err != nil {
			continue
		}
		points = append(points, point{at: at, value: v})
	}
	if len(points) < 2 {
		return nil, ErrNoSeries
	}
	sort.Slice(points, func(a, b int) bool { return points[a].at.Before(points[b].at) })
	return points, nil
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func label(img *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
