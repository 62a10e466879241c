package cryptree

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bitfsorg/cryptree-go/content"
)

func TestValidateChildName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "notes.txt", false},
		{"unicode", "résumé", false},
		{"max length", strings.Repeat("a", MaxChildNameLen), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxChildNameLen+1), true},
		{"slash", "a/b", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"null byte", "a\x00b", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateChildName(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDirectoryBody_RoundTrip(t *testing.T) {
	children := []ChildLink{
		{Name: "b", Kind: KindFile, Location: loc(3), Base: testSecretKey(t), WriteLink: []byte("sealed-b")},
		{Name: "a", Kind: KindDirectory, Location: loc(4), Base: testSecretKey(t)},
		{Name: "c", Kind: KindLink, Location: loc(5), Base: testSecretKey(t), WriteLink: []byte("sealed-c")},
	}

	got, err := parseDirectoryBody(KindDirectory, marshalDirectoryBody(children))
	require.NoError(t, err)
	assert.Equal(t, children, got, "order is preserved")

	empty, err := parseDirectoryBody(KindDirectory, marshalDirectoryBody(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDirectoryBody_LinkNodeHoldsOneChild(t *testing.T) {
	one := []ChildLink{{Name: "a", Kind: KindFile, Location: loc(3), Base: testSecretKey(t)}}
	two := append(one, ChildLink{Name: "b", Kind: KindFile, Location: loc(4), Base: testSecretKey(t)})

	got, err := parseDirectoryBody(KindLink, marshalDirectoryBody(one))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = parseDirectoryBody(KindLink, marshalDirectoryBody(two))
	assert.ErrorIs(t, err, ErrMalformedChunk)

	_, err = parseDirectoryBody(KindLink, marshalDirectoryBody(nil))
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestDirectoryBody_SkipsUnknownFields(t *testing.T) {
	l := ChildLink{Name: "a", Kind: KindFile, Location: loc(3), Base: testSecretKey(t)}

	inner := appendChildLink(nil, l)
	inner = protowire.AppendTag(inner, 99, protowire.VarintType)
	inner = protowire.AppendVarint(inner, 12345)

	var body []byte
	body = protowire.AppendTag(body, 42, protowire.BytesType)
	body = protowire.AppendString(body, "future")
	body = protowire.AppendTag(body, fieldBodyChild, protowire.BytesType)
	body = protowire.AppendBytes(body, inner)

	got, err := parseDirectoryBody(KindDirectory, body)
	require.NoError(t, err)
	assert.Equal(t, []ChildLink{l}, got)
}

func TestDirectoryBody_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body func() []byte
	}{
		{"truncated", func() []byte {
			b := marshalDirectoryBody([]ChildLink{{Name: "a", Location: loc(3)}})
			return b[:len(b)-3]
		}},
		{"child missing base", func() []byte {
			var inner []byte
			inner = protowire.AppendTag(inner, fieldLinkName, protowire.BytesType)
			inner = protowire.AppendString(inner, "a")
			inner = protowire.AppendTag(inner, fieldLinkLocation, protowire.BytesType)
			inner = protowire.AppendBytes(inner, loc(3).Bytes())
			b := protowire.AppendTag(nil, fieldBodyChild, protowire.BytesType)
			return protowire.AppendBytes(b, inner)
		}},
		{"bad location length", func() []byte {
			var inner []byte
			inner = protowire.AppendTag(inner, fieldLinkLocation, protowire.BytesType)
			inner = protowire.AppendBytes(inner, []byte{1, 2, 3})
			b := protowire.AppendTag(nil, fieldBodyChild, protowire.BytesType)
			return protowire.AppendBytes(b, inner)
		}},
		{"unknown kind", func() []byte {
			var inner []byte
			inner = protowire.AppendTag(inner, fieldLinkKind, protowire.VarintType)
			inner = protowire.AppendVarint(inner, 7)
			b := protowire.AppendTag(nil, fieldBodyChild, protowire.BytesType)
			return protowire.AppendBytes(b, inner)
		}},
		{"wrong wire type", func() []byte {
			b := protowire.AppendTag(nil, fieldBodyChild, protowire.VarintType)
			return protowire.AppendVarint(b, 1)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDirectoryBody(KindDirectory, tc.body())
			assert.ErrorIs(t, err, ErrMalformedChunk)
		})
	}
}

func TestMetadata_RoundTrip(t *testing.T) {
	m := Metadata{
		Parent: &ParentLink{Location: loc(1), ParentKey: testSecretKey(t), Kind: KindDirectory},
		Properties: Properties{
			Name:        "photo.jpg",
			Size:        123456,
			Modified:    time.Date(2025, 6, 7, 8, 9, 10, 11, time.UTC),
			MimeType:    "image/jpeg",
			Compression: content.CompressXZ,
			ContentHash: []byte("0123456789abcdef0123456789abcdef"),
		},
	}

	got, err := parseMetadata(KindFile, marshalMetadata(KindFile, m))
	require.NoError(t, err)
	assert.Equal(t, m.Parent, got.Parent)
	assert.True(t, m.Properties.Modified.Equal(got.Properties.Modified))
	got.Properties.Modified = m.Properties.Modified
	assert.Equal(t, m.Properties, got.Properties)
}

func TestMetadata_PreEpochModified(t *testing.T) {
	m := Metadata{Properties: Properties{Name: "old", Modified: time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)}}
	got, err := parseMetadata(KindFile, marshalMetadata(KindFile, m))
	require.NoError(t, err)
	assert.True(t, m.Properties.Modified.Equal(got.Properties.Modified))
}

func TestMetadata_Root(t *testing.T) {
	got, err := parseMetadata(KindDirectory, marshalMetadata(KindDirectory, Metadata{}))
	require.NoError(t, err)
	assert.Nil(t, got.Parent)
	assert.Equal(t, Properties{}, got.Properties)
}

func TestMetadata_LinkNodeNameOnly(t *testing.T) {
	full := Metadata{
		Parent:     &ParentLink{Location: loc(1), ParentKey: testSecretKey(t), Kind: KindDirectory},
		Properties: Properties{Name: "shared", Size: 10, MimeType: "text/plain", Modified: time.Now()},
	}

	// Encoding a link node drops everything but the name.
	got, err := parseMetadata(KindLink, marshalMetadata(KindLink, full))
	require.NoError(t, err)
	assert.Equal(t, Properties{Name: "shared"}, got.Properties)
	assert.Equal(t, full.Parent, got.Parent)

	// A link node that carries more is rejected.
	_, err = parseMetadata(KindLink, marshalMetadata(KindDirectory, full))
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestMetadata_Malformed(t *testing.T) {
	incompleteParent := func() []byte {
		var pb []byte
		pb = protowire.AppendTag(pb, fieldParentLocation, protowire.BytesType)
		pb = protowire.AppendBytes(pb, loc(1).Bytes())
		b := protowire.AppendTag(nil, fieldMetaParent, protowire.BytesType)
		return protowire.AppendBytes(b, pb)
	}
	badKey := func() []byte {
		var pb []byte
		pb = protowire.AppendTag(pb, fieldParentLocation, protowire.BytesType)
		pb = protowire.AppendBytes(pb, loc(1).Bytes())
		pb = protowire.AppendTag(pb, fieldParentKey, protowire.BytesType)
		pb = protowire.AppendBytes(pb, []byte("short"))
		b := protowire.AppendTag(nil, fieldMetaParent, protowire.BytesType)
		return protowire.AppendBytes(b, pb)
	}
	badCompression := func() []byte {
		var pb []byte
		pb = protowire.AppendTag(pb, fieldPropCompression, protowire.VarintType)
		pb = protowire.AppendVarint(pb, 1000)
		b := protowire.AppendTag(nil, fieldMetaProperties, protowire.BytesType)
		return protowire.AppendBytes(b, pb)
	}

	for name, b := range map[string][]byte{
		"incomplete parent": incompleteParent(),
		"bad parent key":    badKey(),
		"bad compression":   badCompression(),
		"garbage":           {0xFF, 0xFF, 0xFF},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseMetadata(KindFile, b)
			assert.ErrorIs(t, err, ErrMalformedChunk)
		})
	}
}
