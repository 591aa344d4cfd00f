package domain

// RemoteJobState is the normalized state of a debrid job
type RemoteJobState string

// Remote job states
const (
	RemoteReady       RemoteJobState = "ready"
	RemoteDownloading RemoteJobState = "downloading"
	RemoteFailed      RemoteJobState = "error"
	RemoteOther       RemoteJobState = "other"
)

// RemoteFile is one file produced by a debrid job
type RemoteFile struct {
	Filename string
	Link     string
	Size     int64
}

// RemoteJobStatus is the provider-independent view of a debrid job
type RemoteJobStatus struct {
	State RemoteJobState
	// Raw is the provider's own status label, kept for logging
	Raw             string
	Message         string
	BytesDownloaded int64
	BytesTotal      int64
	Speed           int64
	Files           []RemoteFile
}

// Progress returns the remote fetch progress as a 0-100 value
func (s *RemoteJobStatus) Progress() float64 {
	return Percent(s.BytesDownloaded, s.BytesTotal)
}

// TotalSize sums the expected sizes of all files
func (s *RemoteJobStatus) TotalSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}
