package models

// Doa 是模型的适用域（domain of applicability）描述。
type Doa struct {
	ID        string      `bson:"_id" json:"_id"`
	ModelID   string      `bson:"modelId" json:"modelId"`
	DoaMatrix [][]float64 `bson:"doaMatrix,omitempty" json:"doaMatrix,omitempty"`
	AValue    float64     `bson:"aValue" json:"aValue"`
	Meta      *MetaInfo   `bson:"meta,omitempty" json:"meta,omitempty"`
}

func (d *Doa) GetID() string { return d.ID }

func (Doa) Kind() Kind { return KindDoa }
