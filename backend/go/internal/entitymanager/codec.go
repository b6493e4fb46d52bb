package entitymanager

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"jaqpot/backend/go/internal/models"
)

// Codec converts entities to schemaless documents and back.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(e models.Entity) (bson.Raw, error)
	Decode(doc bson.Raw, out any) error
}

// BSONCodec encodes through the entity's bson struct tags, leaving its json tags to the wire format.
type BSONCodec struct{}

// NewBSONCodec returns a codec using the driver's default registry.
func NewBSONCodec() *BSONCodec {
	return &BSONCodec{}
}

func (c *BSONCodec) Encode(e models.Entity) (bson.Raw, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrCodec)
	}
	data, err := bson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s %q: %v", ErrCodec, e.Kind(), e.GetID(), err)
	}
	doc := bson.Raw(data)
	id, ok := doc.Lookup("_id").StringValueOK()
	if !ok || id != e.GetID() {
		return nil, fmt.Errorf("%w: %s document has no string _id matching %q", ErrCodec, e.Kind(), e.GetID())
	}
	return doc, nil
}

func (c *BSONCodec) Decode(doc bson.Raw, out any) error {
	if err := bson.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrCodec, err)
	}
	return nil
}
