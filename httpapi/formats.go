package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"html/template"
	"net/http"

	"github.com/vinumeris/lighthouse/envelope"
)

// Recognized values of the optional format suffix on a project path, e.g.
// GET /_lighthouse/crowdfund/project/<id>.json
const (
	formatProtobuf     = ""
	formatJSON         = "json"
	formatXML          = "xml"
	formatHTML         = "html"
	formatRawProject   = "lighthouse-project"
	rawProjectMimeType = "application/vnd.vinumeris.lighthouse-project"
)

// jsonPledge and jsonStatus mirror envelope.Pledge and envelope.ProjectStatus
// for JSON/XML responses; the wire format stays protobuf, these exist only
// because asking a browser or curl to decode protobuf is unreasonable.
type jsonPledge struct {
	ID              string `json:"id" xml:"id"`
	TotalInputValue int64  `json:"totalInputValue" xml:"totalInputValue"`
	Timestamp       int64  `json:"timestamp" xml:"timestamp"`
	OrigHash        string `json:"origHash,omitempty" xml:"origHash,omitempty"`
}

type jsonStatus struct {
	XMLName           xml.Name     `json:"-" xml:"status"`
	ID                string       `json:"id" xml:"id"`
	Timestamp         int64        `json:"timestamp" xml:"timestamp"`
	ValuePledgedSoFar int64        `json:"valuePledgedSoFar" xml:"valuePledgedSoFar"`
	ClaimedBy         string       `json:"claimedBy,omitempty" xml:"claimedBy,omitempty"`
	Pledges           []jsonPledge `json:"pledges" xml:"pledges>pledge"`
}

func toJSONStatus(s *envelope.ProjectStatus) *jsonStatus {
	js := &jsonStatus{
		ID:                hex.EncodeToString(s.ID),
		Timestamp:         s.Timestamp,
		ValuePledgedSoFar: s.ValuePledgedSoFar,
	}
	if len(s.ClaimedBy) > 0 {
		js.ClaimedBy = hex.EncodeToString(s.ClaimedBy)
	}
	for _, p := range s.Pledges {
		jp := jsonPledge{
			TotalInputValue: p.PledgeDetails.TotalInputValue,
			Timestamp:       p.PledgeDetails.Timestamp,
		}
		if len(p.PledgeDetails.OrigHash) > 0 {
			jp.OrigHash = hex.EncodeToString(p.PledgeDetails.OrigHash)
		}
		js.Pledges = append(js.Pledges, jp)
	}
	return js
}

var statusHTMLTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>Project status</title></head>
<body>
<h1>Project {{.ID}}</h1>
<p>Pledged so far: {{.ValuePledgedSoFar}}</p>
{{if .ClaimedBy}}<p>Claimed by transaction {{.ClaimedBy}}</p>{{end}}
<ul>
{{range .Pledges}}<li>{{.TotalInputValue}} ({{.Timestamp}})</li>
{{end}}
</ul>
</body>
</html>
`))

// writeStatus serializes status in the negotiated format and writes it to w.
func writeStatus(w http.ResponseWriter, format string, status *envelope.ProjectStatus) {
	switch format {
	case formatJSON:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toJSONStatus(status))
	case formatXML:
		w.Header().Set("Content-Type", "application/xml")
		xml.NewEncoder(w).Encode(toJSONStatus(status))
	case formatHTML:
		w.Header().Set("Content-Type", "text/html")
		statusHTMLTemplate.Execute(w, toJSONStatus(status))
	default:
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(status.Marshal())
	}
}
