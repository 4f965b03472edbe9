package streaming

import (
	"encoding/json"
	"fmt"
	"strings"
)

// writeHLSMaster renders an HLS master playlist referencing one variant
// per ladder rung.
func writeHLSMaster(ladder []QualityLevel) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, q := range ladder {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s,CODECS=\"%s\"\n", q.Bandwidth, q.Resolution, q.Codecs)
		b.WriteString(q.URL)
		b.WriteString("\n")
	}
	return b.String()
}

// writeDASHManifest renders a minimal static MPD with one AdaptationSet
// holding a Representation per rung.
func writeDASHManifest(ladder []QualityLevel, duration float64) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT%.1fS" profiles="urn:mpeg:dash:profile:isoff-on-demand:2011">`+"\n", duration)
	b.WriteString("  <Period>\n")
	b.WriteString(`    <AdaptationSet mimeType="video/mp4" segmentAlignment="true">` + "\n")
	for _, q := range ladder {
		res := strings.SplitN(q.Resolution, "x", 2)
		width, height := "0", "0"
		if len(res) == 2 {
			width, height = res[0], res[1]
		}
		fmt.Fprintf(&b, `      <Representation id="%s" bandwidth="%d" width="%s" height="%s" codecs="%s">`+"\n",
			q.Quality, q.Bandwidth, width, height, q.Codecs)
		fmt.Fprintf(&b, "        <BaseURL>%s</BaseURL>\n", q.URL)
		b.WriteString("      </Representation>\n")
	}
	b.WriteString("    </AdaptationSet>\n")
	b.WriteString("  </Period>\n")
	b.WriteString("</MPD>\n")
	return b.String()
}

type progressiveSource struct {
	Quality   string `json:"quality"`
	URL       string `json:"url"`
	Bandwidth int    `json:"bandwidth"`
}

type progressiveManifest struct {
	Sources []progressiveSource `json:"sources"`
}

// writeProgressiveManifest renders a JSON source list for clients that
// play whole files over byte-range requests.
func writeProgressiveManifest(ladder []QualityLevel) string {
	m := progressiveManifest{Sources: make([]progressiveSource, 0, len(ladder))}
	for _, q := range ladder {
		m.Sources = append(m.Sources, progressiveSource{
			Quality:   q.Quality,
			URL:       q.URL,
			Bandwidth: q.Bandwidth,
		})
	}
	body, _ := json.Marshal(m)
	return string(body)
}
