package envelope

import (
	"bytes"
	"io"

	"github.com/lightningnetwork/lnd/tlv"
)

// TLV types carried inside ProjectDetails.extra_details. Using a TLV stream
// (rather than another nested protobuf message) lets an author attach
// forward-compatible metadata -- exactly the role lnd's tlv package plays
// for optional per-record data on top of a fixed wire message.
const (
	typeTitle         tlv.Type = 0
	typeCoverImage    tlv.Type = 1
	typeAuthorKey     tlv.Type = 2
	typeMinPledgeSize tlv.Type = 3
	typeOwnerBlob     tlv.Type = 4
	typeAuthorKeyIdx  tlv.Type = 5
)

// ExtraDetails carries the project metadata that sits outside the core
// "outputs sum to a goal" contract: display data for the crowdfunding UI,
// the owner's authentication key, and the minimum pledge size.
type ExtraDetails struct {
	// Title is the human-readable name of the project.
	Title string

	// CoverImage is an optional image blob shown alongside the title.
	CoverImage []byte

	// AuthorKey is the compressed secp256k1 public key the owner proves
	// authorship with (see Project.AuthenticateOwner).
	AuthorKey []byte

	// MinPledgeSize is the minimum totalInputValue a pledge toward this
	// project may declare.
	MinPledgeSize uint64

	// OwnerBlob is an opaque, server-private payload. The author key's
	// index is not stored here; it travels in its own AuthorKeyIndex field.
	OwnerBlob []byte

	// AuthorKeyIndex is set only when the author key's derivation index
	// exceeds the key-chain lookahead; otherwise it is omitted for
	// privacy.
	AuthorKeyIndex *uint32
}

// Encode serializes the extra details as a TLV stream.
func (e *ExtraDetails) Encode() ([]byte, error) {
	var records []tlv.Record

	title := tlv.EVarBytes
	titleVal := []byte(e.Title)
	records = append(records, tlv.MakeDynamicRecord(
		typeTitle, &titleVal, func() uint64 { return uint64(len(titleVal)) },
		title, tlv.DVarBytes,
	))

	if len(e.CoverImage) > 0 {
		cover := e.CoverImage
		records = append(records, tlv.MakeDynamicRecord(
			typeCoverImage, &cover, func() uint64 { return uint64(len(cover)) },
			tlv.EVarBytes, tlv.DVarBytes,
		))
	}

	if len(e.AuthorKey) > 0 {
		key := e.AuthorKey
		records = append(records, tlv.MakeDynamicRecord(
			typeAuthorKey, &key, func() uint64 { return uint64(len(key)) },
			tlv.EVarBytes, tlv.DVarBytes,
		))
	}

	minPledge := e.MinPledgeSize
	records = append(records, tlv.MakePrimitiveRecord(typeMinPledgeSize, &minPledge))

	if len(e.OwnerBlob) > 0 {
		blob := e.OwnerBlob
		records = append(records, tlv.MakeDynamicRecord(
			typeOwnerBlob, &blob, func() uint64 { return uint64(len(blob)) },
			tlv.EVarBytes, tlv.DVarBytes,
		))
	}

	if e.AuthorKeyIndex != nil {
		idx := *e.AuthorKeyIndex
		records = append(records, tlv.MakePrimitiveRecord(typeAuthorKeyIdx, &idx))
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeExtraDetails parses a TLV-encoded extra details blob.
func DecodeExtraDetails(b []byte) (*ExtraDetails, error) {
	var (
		titleVal, coverVal, keyVal, blobVal []byte
		minPledge                          uint64
		authorIdx                           uint32
	)

	records := []tlv.Record{
		tlv.MakeDynamicRecord(
			typeTitle, &titleVal, func() uint64 { return uint64(len(titleVal)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
		tlv.MakeDynamicRecord(
			typeCoverImage, &coverVal, func() uint64 { return uint64(len(coverVal)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
		tlv.MakeDynamicRecord(
			typeAuthorKey, &keyVal, func() uint64 { return uint64(len(keyVal)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
		tlv.MakePrimitiveRecord(typeMinPledgeSize, &minPledge),
		tlv.MakeDynamicRecord(
			typeOwnerBlob, &blobVal, func() uint64 { return uint64(len(blobVal)) },
			tlv.EVarBytes, tlv.DVarBytes,
		),
		tlv.MakePrimitiveRecord(typeAuthorKeyIdx, &authorIdx),
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	parsed, err := stream.DecodeWithParsedTypes(bytes.NewReader(b))
	if err != nil && err != io.EOF {
		return nil, malformed("extra details: %v", err)
	}

	extra := &ExtraDetails{
		Title:         string(titleVal),
		CoverImage:    coverVal,
		AuthorKey:     keyVal,
		MinPledgeSize: minPledge,
		OwnerBlob:     blobVal,
	}
	if _, ok := parsed[typeAuthorKeyIdx]; ok {
		idx := authorIdx
		extra.AuthorKeyIndex = &idx
	}

	return extra, nil
}
