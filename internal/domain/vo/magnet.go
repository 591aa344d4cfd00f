package vo

import (
	"errors"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

var ErrInvalidMagnet = errors.New("invalid magnet link")

// MagnetLink is a magnet reference accepted for submission
type MagnetLink struct {
	raw         string
	infoHash    string
	displayName string
}

// ParseMagnet accepts any non-empty magnet URI. The debrid service is the
// authority on whether the hash is usable, so a hash that metainfo cannot
// decode is passed through without InfoHash.
func ParseMagnet(raw string) (MagnetLink, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(raw), "magnet:?") {
		return MagnetLink{}, ErrInvalidMagnet
	}

	link := MagnetLink{raw: raw}
	if m, err := metainfo.ParseMagnetUri(raw); err == nil {
		link.infoHash = m.InfoHash.HexString()
		link.displayName = m.DisplayName
	}
	return link, nil
}

// String returns the magnet URI as submitted
func (m MagnetLink) String() string {
	return m.raw
}

// InfoHash returns the hex-encoded info hash, empty when it could not be decoded
func (m MagnetLink) InfoHash() string {
	return m.infoHash
}

// DisplayName returns the dn parameter, if any
func (m MagnetLink) DisplayName() string {
	return m.displayName
}
