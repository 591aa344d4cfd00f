package alldebrid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// Endpoint paths relative to the v4 base URL
const (
	pathMagnetUpload = "/magnet/upload"
	pathMagnetStatus = "/magnet/status"
	pathLinkUnlock   = "/link/unlock"
)

// Status codes reported by /magnet/status
const (
	statusCodeDownloading = 1
	statusCodeReady       = 4
	// statusCodeFirstError and above are terminal provider failures
	statusCodeFirstError = 5
)

// Response is the envelope of every API response
type Response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// uploadData is the data of /magnet/upload
type uploadData struct {
	Magnets []uploadedMagnet `json:"magnets"`
}

type uploadedMagnet struct {
	Magnet string      `json:"magnet"`
	Hash   string      `json:"hash"`
	Name   string      `json:"name"`
	ID     json.Number `json:"id"`
	Ready  bool        `json:"ready"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// statusData is the data of /magnet/status. Magnets is an object when an id
// is given and an array otherwise.
type statusData struct {
	Magnets json.RawMessage `json:"magnets"`
}

// Magnet is the status of one remote job
type Magnet struct {
	ID            json.Number `json:"id"`
	Filename      string      `json:"filename"`
	Size          int64       `json:"size"`
	Status        string      `json:"status"`
	StatusCode    *int        `json:"statusCode"`
	Downloaded    int64       `json:"downloaded"`
	DownloadSpeed int64       `json:"downloadSpeed"`
	Links         []Link      `json:"links"`
}

// Link is one downloadable file of a ready magnet
type Link struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// unlockData is the data of /link/unlock
type unlockData struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

func decodeMagnet(raw json.RawMessage) (*Magnet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty magnet status")
	}
	if trimmed[0] == '[' {
		var list []Magnet
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("empty magnet status")
		}
		return &list[0], nil
	}
	var m Magnet
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// State maps the provider vocabulary onto the normalized job states.
// Unknown labels map to RemoteOther so the poller keeps waiting.
func (m *Magnet) State() domain.RemoteJobState {
	label := strings.ToLower(strings.TrimSpace(m.Status))
	switch {
	case label == "ready" || (m.StatusCode != nil && *m.StatusCode == statusCodeReady):
		return domain.RemoteReady
	case label == "error" || (m.StatusCode != nil && *m.StatusCode >= statusCodeFirstError):
		return domain.RemoteFailed
	case label == "downloading" || (m.StatusCode != nil && *m.StatusCode == statusCodeDownloading):
		return domain.RemoteDownloading
	default:
		return domain.RemoteOther
	}
}

// ToJobStatus converts the provider status into the normalized view
func (m *Magnet) ToJobStatus() *domain.RemoteJobStatus {
	status := &domain.RemoteJobStatus{
		State:           m.State(),
		Raw:             m.Status,
		BytesDownloaded: m.Downloaded,
		BytesTotal:      m.Size,
		Speed:           m.DownloadSpeed,
		Files:           make([]domain.RemoteFile, 0, len(m.Links)),
	}
	if status.State == domain.RemoteFailed {
		status.Message = "remote processing failed"
		if m.Status != "" {
			status.Message += ": " + m.Status
		}
	}
	for _, l := range m.Links {
		status.Files = append(status.Files, domain.RemoteFile{
			Filename: l.Filename,
			Link:     l.Link,
			Size:     l.Size,
		})
	}
	return status
}
