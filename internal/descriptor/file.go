package descriptor

import (
	"github.com/petervdpas/conversation-engine/internal/codec"
)

// FileAttachment holds the fields shared by every file-bearing variant
// (spec.md §4.2: File, Image, Audio, Video, NamedFile). Path is a
// filesystem-relative path under the engine's files directory, resolved
// by the persistence layer, never written verbatim across peers.
type FileAttachment struct {
	Name          string
	Extension     string
	Length        int64
	HasThumbnail  bool
	ContentFormat string // MIME-ish type hint, e.g. "image/jpeg"
	LocalPath     string // not encoded on the wire; filled in by the store on load
}

func (f *FileAttachment) encode(w *codec.Writer) {
	w.WriteString(f.Name)
	w.WriteString(f.Extension)
	w.WriteLong(f.Length)
	w.WriteBool(f.HasThumbnail)
	w.WriteString(f.ContentFormat)
}

func decodeFileAttachment(r *codec.Reader) (FileAttachment, error) {
	var f FileAttachment
	var err error
	if f.Name, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.Extension, err = r.ReadString(); err != nil {
		return f, err
	}
	if f.Length, err = r.ReadLong(); err != nil {
		return f, err
	}
	if f.HasThumbnail, err = r.ReadBool(); err != nil {
		return f, err
	}
	if f.ContentFormat, err = r.ReadString(); err != nil {
		return f, err
	}
	return f, nil
}

// File is a generic (non-media) file attachment descriptor.
type File struct {
	Envelope
	FileAttachment
}

var fileSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0002")

const fileSchemaVersion = 1

func init() { RegisterSchema(fileSchemaID, fileSchemaVersion, decodeFile) }

func (d *File) Base() *Envelope { return &d.Envelope }
func (d *File) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: fileSchemaID, Version: fileSchemaVersion}
}
func (d *File) Encode(w *codec.Writer) { d.FileAttachment.encode(w) }
func (d *File) Forward() (Descriptor, error) {
	return &File{FileAttachment: d.FileAttachment}, nil
}

func decodeFile(r *codec.Reader, env Envelope) (Descriptor, error) {
	att, err := decodeFileAttachment(r)
	if err != nil {
		return nil, err
	}
	return &File{Envelope: env, FileAttachment: att}, nil
}

// Image is a file attachment with a known image format, carrying width
// and height in addition to the shared attachment fields.
type Image struct {
	Envelope
	FileAttachment
	Width  int32
	Height int32
}

var imageSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0003")

const imageSchemaVersion = 1

func init() { RegisterSchema(imageSchemaID, imageSchemaVersion, decodeImage) }

func (d *Image) Base() *Envelope { return &d.Envelope }
func (d *Image) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: imageSchemaID, Version: imageSchemaVersion}
}
func (d *Image) Encode(w *codec.Writer) {
	d.FileAttachment.encode(w)
	w.WriteInt32(d.Width)
	w.WriteInt32(d.Height)
}
func (d *Image) Forward() (Descriptor, error) {
	return &Image{FileAttachment: d.FileAttachment, Width: d.Width, Height: d.Height}, nil
}

func decodeImage(r *codec.Reader, env Envelope) (Descriptor, error) {
	att, err := decodeFileAttachment(r)
	if err != nil {
		return nil, err
	}
	w, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	h, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	return &Image{Envelope: env, FileAttachment: att, Width: w, Height: h}, nil
}

// Audio is a file attachment carrying a playback duration in milliseconds.
type Audio struct {
	Envelope
	FileAttachment
	DurationMs int64
}

var audioSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0004")

const audioSchemaVersion = 1

func init() { RegisterSchema(audioSchemaID, audioSchemaVersion, decodeAudio) }

func (d *Audio) Base() *Envelope { return &d.Envelope }
func (d *Audio) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: audioSchemaID, Version: audioSchemaVersion}
}
func (d *Audio) Encode(w *codec.Writer) {
	d.FileAttachment.encode(w)
	w.WriteLong(d.DurationMs)
}
func (d *Audio) Forward() (Descriptor, error) {
	return &Audio{FileAttachment: d.FileAttachment, DurationMs: d.DurationMs}, nil
}

func decodeAudio(r *codec.Reader, env Envelope) (Descriptor, error) {
	att, err := decodeFileAttachment(r)
	if err != nil {
		return nil, err
	}
	dur, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return &Audio{Envelope: env, FileAttachment: att, DurationMs: dur}, nil
}

// Video is a file attachment carrying both frame dimensions and duration.
type Video struct {
	Envelope
	FileAttachment
	Width      int32
	Height     int32
	DurationMs int64
}

var videoSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0005")

const videoSchemaVersion = 1

func init() { RegisterSchema(videoSchemaID, videoSchemaVersion, decodeVideo) }

func (d *Video) Base() *Envelope { return &d.Envelope }
func (d *Video) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: videoSchemaID, Version: videoSchemaVersion}
}
func (d *Video) Encode(w *codec.Writer) {
	d.FileAttachment.encode(w)
	w.WriteInt32(d.Width)
	w.WriteInt32(d.Height)
	w.WriteLong(d.DurationMs)
}
func (d *Video) Forward() (Descriptor, error) {
	return &Video{FileAttachment: d.FileAttachment, Width: d.Width, Height: d.Height, DurationMs: d.DurationMs}, nil
}

func decodeVideo(r *codec.Reader, env Envelope) (Descriptor, error) {
	att, err := decodeFileAttachment(r)
	if err != nil {
		return nil, err
	}
	w, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	h, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	dur, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return &Video{Envelope: env, FileAttachment: att, Width: w, Height: h, DurationMs: dur}, nil
}

// NamedFile is a file attachment whose display name differs from its
// on-disk name (e.g. a file forwarded from another conversation).
type NamedFile struct {
	Envelope
	FileAttachment
	DisplayName string
}

var namedFileSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0006")

const namedFileSchemaVersion = 1

func init() { RegisterSchema(namedFileSchemaID, namedFileSchemaVersion, decodeNamedFile) }

func (d *NamedFile) Base() *Envelope { return &d.Envelope }
func (d *NamedFile) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: namedFileSchemaID, Version: namedFileSchemaVersion}
}
func (d *NamedFile) Encode(w *codec.Writer) {
	d.FileAttachment.encode(w)
	w.WriteString(d.DisplayName)
}
func (d *NamedFile) Forward() (Descriptor, error) {
	return &NamedFile{FileAttachment: d.FileAttachment, DisplayName: d.DisplayName}, nil
}

func decodeNamedFile(r *codec.Reader, env Envelope) (Descriptor, error) {
	att, err := decodeFileAttachment(r)
	if err != nil {
		return nil, err
	}
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	return &NamedFile{Envelope: env, FileAttachment: att, DisplayName: name}, nil
}
