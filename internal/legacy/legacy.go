// Package legacy reads the JSON export of the old document database: a
// "pecas" collection of pieces and a "pedidos" collection of orders, with
// Portuguese field names. Collections may be arrays of documents or objects
// keyed by document id.
package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/oder/internal/model"
)

// Export is the converted content of an export file.
type Export struct {
	Assets []model.Asset
	Orders []model.Order
}

type pecaDoc struct {
	ID     flexString `json:"id"`
	Modelo string     `json:"modelo"`
	Status string     `json:"status"`
}

type itemDoc struct {
	Modelo        string       `json:"modelo"`
	Quantidade    flexInt      `json:"quantidade"`
	IDsPecas      []flexString `json:"ids_pecas"`
	IDsDevolvidos []flexString `json:"ids_devolvidos"`
}

type pedidoDoc struct {
	ID           flexString `json:"id"`
	Encarregado  string     `json:"encarregado"`
	Contrato     string     `json:"contrato"`
	Obra         string     `json:"obra"`
	DataRetirada string     `json:"data_retirada"`
	DataPedido   string     `json:"data_pedido"`
	DiasUso      flexInt    `json:"dias_uso"`
	Itens        []itemDoc  `json:"itens"`
}

type exportDoc struct {
	Pecas   json.RawMessage `json:"pecas"`
	Pedidos json.RawMessage `json:"pedidos"`
}

// Parse reads an export. Numeric piece ids shorter than idWidth are padded
// with leading zeros, since the old database stored some of them as numbers.
func Parse(r io.Reader, idWidth int) (*Export, error) {
	var doc exportDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}

	var pecas []pecaDoc
	if err := decodeCollection(doc.Pecas, &pecas, func(p *pecaDoc, key string) {
		if p.ID == "" {
			p.ID = flexString(key)
		}
	}); err != nil {
		return nil, fmt.Errorf("decoding pecas: %w", err)
	}
	var pedidos []pedidoDoc
	if err := decodeCollection(doc.Pedidos, &pedidos, func(p *pedidoDoc, key string) {
		if p.ID == "" {
			p.ID = flexString(key)
		}
	}); err != nil {
		return nil, fmt.Errorf("decoding pedidos: %w", err)
	}

	out := &Export{}
	for _, p := range pecas {
		a, err := convertPeca(p, idWidth)
		if err != nil {
			return nil, err
		}
		out.Assets = append(out.Assets, a)
	}
	for _, p := range pedidos {
		o, err := convertPedido(p, idWidth)
		if err != nil {
			return nil, err
		}
		out.Orders = append(out.Orders, o)
	}
	slices.SortFunc(out.Assets, func(a, b model.Asset) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// decodeCollection accepts either a JSON array or an object keyed by id.
func decodeCollection[T any](raw json.RawMessage, out *[]T, setKey func(doc *T, key string)) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, out)
	}

	var byKey map[string]T
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return err
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		doc := byKey[k]
		setKey(&doc, k)
		*out = append(*out, doc)
	}
	return nil
}

func convertPeca(p pecaDoc, idWidth int) (model.Asset, error) {
	id, err := PadID(string(p.ID), idWidth)
	if err != nil {
		return model.Asset{}, err
	}
	status, err := convertStatus(p.Status)
	if err != nil {
		return model.Asset{}, fmt.Errorf("piece %s: %w", id, err)
	}
	modelName := strings.Join(strings.Fields(p.Modelo), " ")
	if modelName == "" {
		return model.Asset{}, fmt.Errorf("piece %s has no model", id)
	}
	return model.Asset{ID: id, Model: modelName, Status: status}, nil
}

func convertStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disponivel", "disponível":
		return model.AssetAvailable, nil
	case "emprestado", "alugado":
		return model.AssetOnLoan, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

func convertPedido(p pedidoDoc, idWidth int) (model.Order, error) {
	id := strings.TrimSpace(string(p.ID))
	if id == "" {
		return model.Order{}, fmt.Errorf("order without id")
	}
	o := model.Order{
		ID:       id,
		Crew:     strings.TrimSpace(p.Encarregado),
		Contract: strings.TrimSpace(p.Contrato),
		Site:     strings.TrimSpace(p.Obra),
		LoanDays: max(int(p.DiasUso), 0),
		Items:    make([]model.LineItem, 0, len(p.Itens)),
	}

	var err error
	if o.PickupDate, err = parseDay(p.DataRetirada); err != nil {
		return model.Order{}, fmt.Errorf("order %s: data_retirada: %w", id, err)
	}
	if p.DataPedido != "" {
		if o.CreatedAt, err = time.Parse(time.RFC3339Nano, p.DataPedido); err != nil {
			return model.Order{}, fmt.Errorf("order %s: data_pedido: %w", id, err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
	}

	for i, it := range p.Itens {
		active, err := padIDs(it.IDsPecas, idWidth)
		if err != nil {
			return model.Order{}, fmt.Errorf("order %s item %d: %w", id, i+1, err)
		}
		returned, err := padIDs(it.IDsDevolvidos, idWidth)
		if err != nil {
			return model.Order{}, fmt.Errorf("order %s item %d: %w", id, i+1, err)
		}
		// Some exported orders list a piece as both out and returned; returned wins.
		active = slices.DeleteFunc(active, func(id string) bool { return slices.Contains(returned, id) })
		o.Items = append(o.Items, model.LineItem{
			Model:    strings.TrimSpace(it.Modelo),
			Quantity: max(int(it.Quantidade), 0),
			Active:   active,
			Returned: returned,
		})
	}
	return o, nil
}

// parseDay accepts YYYY-MM-DD or a timestamp starting with it.
func parseDay(s string) (model.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Date{}, nil
	}
	if len(s) > len(model.DateLayout) {
		s = s[:len(model.DateLayout)]
	}
	return model.ParseDate(s)
}

func padIDs(ids []flexString, width int) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := PadID(string(raw), width)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// PadID left-pads a numeric id with zeros to width and checks the result.
func PadID(id string, width int) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("empty piece id")
	}
	if len(id) < width {
		id = strings.Repeat("0", width-len(id)) + id
	}
	if !model.ValidAssetID(id, width) {
		return "", fmt.Errorf("invalid piece id %q", id)
	}
	return id, nil
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// flexInt decodes a JSON number or a numeric string; empty and null give 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
			*f = 0
			return nil
		}
		return err
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(str)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", str)
	}
	*f = flexInt(n)
	return nil
}
