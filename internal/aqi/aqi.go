// Package aqi maps PM2.5 concentrations onto the Indian National AQI bands.
package aqi

import "strings"

// Category is one PM2.5 band with its display colours.
type Category struct {
	Name string
	// Upper is the inclusive upper bound in µg/m³; the last band is unbounded.
	Upper float64
	// Colour is the heatmap fill, TextColour the readable foreground on it.
	Colour     string
	TextColour string
}

// Slug returns a filename- and CSS-safe form of the category name.
func (c Category) Slug() string {
	return strings.ReplaceAll(strings.ToLower(c.Name), " ", "_")
}

var categories = []Category{
	{Name: "Good", Upper: 30, Colour: "#009865", TextColour: "#ffffff"},
	{Name: "Satisfactory", Upper: 60, Colour: "#a3c853", TextColour: "#1a1a1a"},
	{Name: "Moderate", Upper: 90, Colour: "#fff833", TextColour: "#1a1a1a"},
	{Name: "Poor", Upper: 120, Colour: "#f29c33", TextColour: "#1a1a1a"},
	{Name: "Very Poor", Upper: 250, Colour: "#e93f33", TextColour: "#ffffff"},
	{Name: "Severe", Colour: "#af2d24", TextColour: "#ffffff"},
}

// Categorize returns the band containing pm25. Negative values fall into Good.
func Categorize(pm25 float64) Category {
	for _, c := range categories[:len(categories)-1] {
		if pm25 <= c.Upper {
			return c
		}
	}
	return categories[len(categories)-1]
}

// Categories returns every band in ascending order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Dominant returns the most frequent category over values, breaking ties
// towards the worse band. It returns false for no values.
func Dominant(values []float64) (Category, bool) {
	if len(values) == 0 {
		return Category{}, false
	}
	counts := make(map[string]int)
	for _, v := range values {
		counts[Categorize(v).Name]++
	}
	var best Category
	bestCount := -1
	for _, c := range categories {
		if counts[c.Name] >= bestCount && counts[c.Name] > 0 {
			best, bestCount = c, counts[c.Name]
		}
	}
	return best, true
}
