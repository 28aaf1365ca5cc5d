package descriptor

import "github.com/petervdpas/conversation-engine/internal/codec"

// Geolocation is a one-shot position share. Latitude/Longitude are
// stored as IEEE-754 bit patterns via the long encoding (no dedicated
// float primitive in the codec, matching the wire's integer-only frames).
type Geolocation struct {
	Envelope
	Latitude  float64
	Longitude float64
	Accuracy  float64 // meters, 0 if unknown
}

var geolocationSchemaID = codec.MustUUID("6a1f7b6e-0d1b-4a1a-9d9e-2f6f6a2f0008")

const geolocationSchemaVersion = 1

func init() { RegisterSchema(geolocationSchemaID, geolocationSchemaVersion, decodeGeolocation) }

func (d *Geolocation) Base() *Envelope { return &d.Envelope }
func (d *Geolocation) SchemaHeader() codec.SchemaHeader {
	return codec.SchemaHeader{ID: geolocationSchemaID, Version: geolocationSchemaVersion}
}

func (d *Geolocation) Encode(w *codec.Writer) {
	w.WriteLong(floatBits(d.Latitude))
	w.WriteLong(floatBits(d.Longitude))
	w.WriteLong(floatBits(d.Accuracy))
}

func (d *Geolocation) Forward() (Descriptor, error) {
	return &Geolocation{Latitude: d.Latitude, Longitude: d.Longitude, Accuracy: d.Accuracy}, nil
}

func decodeGeolocation(r *codec.Reader, env Envelope) (Descriptor, error) {
	lat, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	lon, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	acc, err := r.ReadLong()
	if err != nil {
		return nil, err
	}
	return &Geolocation{
		Envelope:  env,
		Latitude:  bitsFloat(lat),
		Longitude: bitsFloat(lon),
		Accuracy:  bitsFloat(acc),
	}, nil
}
