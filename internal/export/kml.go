package export

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

// KML document shapes. Only the subset needed for point tracks.
type kmlDocument struct {
	XMLName    xml.Name       `xml:"kml"`
	Xmlns      string         `xml:"xmlns,attr"`
	Name       string         `xml:"Document>name"`
	Styles     []kmlStyle     `xml:"Document>Style"`
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
}

type kmlStyle struct {
	ID    string `xml:"id,attr"`
	Color string `xml:"IconStyle>color"`
	Scale string `xml:"IconStyle>scale"`
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	StyleURL    string `xml:"styleUrl"`
	Coordinates string `xml:"Point>coordinates"`
}

const (
	styleClean   = "clean"
	styleSpoofed = "spoofed"
)

// WriteKML writes one placemark per solved epoch, coloured by verdict,
// so a run can be eyeballed in Google Earth.
func WriteKML(path, name string, results []model.EpochResult) error {
	doc := kmlDocument{
		Xmlns: "http://www.opengis.net/kml/2.2",
		Name:  name,
		Styles: []kmlStyle{
			{ID: styleClean, Color: "ff00ff00", Scale: "0.6"},
			{ID: styleSpoofed, Color: "ff0000ff", Scale: "0.8"},
		},
	}
	for _, r := range results {
		if r.Skipped() {
			continue
		}
		style := styleClean
		desc := fmt.Sprintf("rms %.1f m", r.Estimate.RMS)
		if r.Verdict.Spoofed() {
			style = styleSpoofed
			desc = fmt.Sprintf("rms %.1f m, spoofed: %v", r.Estimate.RMS, r.Verdict.Reasons)
		}
		doc.Placemarks = append(doc.Placemarks, kmlPlacemark{
			Name:        fmt.Sprintf("week %d tow %.1f", r.Week, r.TowSec),
			Description: desc,
			StyleURL:    "#" + style,
			Coordinates: fmt.Sprintf("%.9f,%.9f,%.3f",
				r.Estimate.Geodetic.LonDeg, r.Estimate.Geodetic.LatDeg, r.Estimate.Geodetic.AltM),
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling kml: %w", err)
	}
	data := append([]byte(xml.Header), out...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing kml: %w", err)
	}
	return nil
}
