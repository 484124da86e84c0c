package wikibase

import (
	"strconv"
	"strings"
)

// Value is the typed value of a claim: StringValue, ItemValue or CoordinateValue.
type Value interface {
	// Term renders the value as a query-language term.
	Term() string
	isValue()
}

type StringValue string

func (v StringValue) Term() string { return StringLiteral(string(v)) }
func (StringValue) isValue()       {}

// ItemValue is a cross-reference to another entity.
type ItemValue string

func (v ItemValue) Term() string { return ItemTerm(string(v)) }
func (ItemValue) isValue()       {}

type CoordinateValue struct {
	Lat float64
	Lon float64
}

func (v CoordinateValue) Term() string {
	return `"Point(` + formatFloat(v.Lon) + " " + formatFloat(v.Lat) + `)"^^geo:wktLiteral`
}
func (CoordinateValue) isValue() {}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Claim attaches a value to an entity through a property.
type Claim struct {
	Property string
	Value    Value
}

func String(property, value string) Claim {
	return Claim{Property: property, Value: StringValue(value)}
}

func Item(property, id string) Claim {
	return Claim{Property: property, Value: ItemValue(id)}
}

func Coordinate(property string, lat, lon float64) Claim {
	return Claim{Property: property, Value: CoordinateValue{Lat: lat, Lon: lon}}
}

// empty reports whether the claim cannot be submitted: the store rejects
// empty string values.
func (c Claim) empty() bool {
	switch v := c.Value.(type) {
	case nil:
		return true
	case StringValue:
		return strings.TrimSpace(string(v)) == ""
	case ItemValue:
		return v == ""
	}
	return false
}

// NonEmpty returns the claims that can be submitted.
func NonEmpty(claims []Claim) []Claim {
	out := make([]Claim, 0, len(claims))
	for _, c := range claims {
		if !c.empty() {
			out = append(out, c)
		}
	}
	return out
}

// wire format of a statement for wbeditentity

type statement struct {
	Mainsnak snak   `json:"mainsnak"`
	Type     string `json:"type"`
	Rank     string `json:"rank"`
}

type snak struct {
	Snaktype  string    `json:"snaktype"`
	Property  string    `json:"property"`
	Datavalue datavalue `json:"datavalue"`
}

type datavalue struct {
	Value any    `json:"value"`
	Type  string `json:"type"`
}

type entityIDValue struct {
	EntityType string `json:"entity-type"`
	ID         string `json:"id"`
}

type globeCoordinateValue struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Precision float64 `json:"precision"`
	Globe     string  `json:"globe"`
}

const (
	coordinatePrecision = 0.000001
	earthGlobe          = "http://www.wikidata.org/entity/Q2"
)

// encodeClaims converts claims to statements, dropping the ones with empty values.
func encodeClaims(claims []Claim) []statement {
	out := make([]statement, 0, len(claims))
	for _, c := range NonEmpty(claims) {
		var dv datavalue
		switch v := c.Value.(type) {
		case StringValue:
			dv = datavalue{Value: strings.TrimSpace(string(v)), Type: "string"}
		case ItemValue:
			dv = datavalue{Value: entityIDValue{EntityType: "item", ID: string(v)}, Type: "wikibase-entityid"}
		case CoordinateValue:
			dv = datavalue{Value: globeCoordinateValue{
				Latitude:  v.Lat,
				Longitude: v.Lon,
				Precision: coordinatePrecision,
				Globe:     earthGlobe,
			}, Type: "globecoordinate"}
		}
		out = append(out, statement{
			Mainsnak: snak{Snaktype: "value", Property: c.Property, Datavalue: dv},
			Type:     "statement",
			Rank:     "normal",
		})
	}
	return out
}
