package imagemerge

import (
	"bytes"

	"github.com/bep/imagemeta"
)

// ImageMetadata holds the attribution fields embedded in an image file.
type ImageMetadata struct {
	EXIFArtist    string
	EXIFCopyright string
	IPTCByline    string
	IPTCCredit    string
	IPTCCopyright string
	DCCreator     string
	DCRights      string
}

// Credit returns the most specific attribution available, or "".
func (m *ImageMetadata) Credit() string {
	if m == nil {
		return ""
	}
	for _, f := range []string{
		m.EXIFArtist,
		m.IPTCByline,
		m.DCCreator,
		m.IPTCCredit,
		m.EXIFCopyright,
		m.IPTCCopyright,
		m.DCRights,
	} {
		if f != "" {
			return f
		}
	}
	return ""
}

type tagKey struct {
	source imagemeta.Source
	tag    string
}

// metadataFields maps each wanted tag to the field it fills.
var metadataFields = map[tagKey]func(*ImageMetadata) *string{
	{imagemeta.EXIF, "Artist"}:          func(m *ImageMetadata) *string { return &m.EXIFArtist },
	{imagemeta.EXIF, "Copyright"}:       func(m *ImageMetadata) *string { return &m.EXIFCopyright },
	{imagemeta.IPTC, "Byline"}:          func(m *ImageMetadata) *string { return &m.IPTCByline },
	{imagemeta.IPTC, "Credit"}:          func(m *ImageMetadata) *string { return &m.IPTCCredit },
	{imagemeta.IPTC, "CopyrightNotice"}: func(m *ImageMetadata) *string { return &m.IPTCCopyright },
	{imagemeta.XMP, "Creator"}:          func(m *ImageMetadata) *string { return &m.DCCreator },
	{imagemeta.XMP, "Rights"}:           func(m *ImageMetadata) *string { return &m.DCRights },
}

// ExtractImageMetadata parses EXIF/IPTC/XMP attribution from raw image bytes.
// Returns nil if nothing useful was found. Never fails: metadata is advisory.
func ExtractImageMetadata(data []byte) *ImageMetadata {
	if len(data) == 0 {
		return nil
	}

	meta := &ImageMetadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			_, ok := metadataFields[tagKey{ti.Source, ti.Tag}]
			return ok
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			field, ok := metadataFields[tagKey{ti.Source, ti.Tag}]
			if !ok {
				return nil
			}
			if s := tagValueString(ti.Value); s != "" {
				*field(meta) = s
				found = true
			}
			return nil
		},
	})

	if err != nil || !found {
		return nil
	}
	return meta
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
