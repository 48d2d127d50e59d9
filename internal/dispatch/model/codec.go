package model

import (
	"bytes"
	"fmt"

	appErr "fuzdispatch/pkg/errors"

	"gopkg.in/yaml.v3"
)

const descriptorType = "job"

type wireDescriptor struct {
	Type     string          `yaml:"type"`
	Kind     string          `yaml:"kind"`
	ID       string          `yaml:"id"`
	Priority *int            `yaml:"priority,omitempty"`
	Seq      int64           `yaml:"seq,omitempty"`
	Data     yaml.Node       `yaml:"data"`
	Resource *ResourceLimits `yaml:"resource,omitempty"`
}

type wireEncode struct {
	Type     string          `yaml:"type"`
	Kind     string          `yaml:"kind"`
	ID       string          `yaml:"id"`
	Priority *int            `yaml:"priority,omitempty"`
	Seq      int64           `yaml:"seq,omitempty"`
	Data     interface{}     `yaml:"data"`
	Resource *ResourceLimits `yaml:"resource,omitempty"`
}

// EncodeDescriptor renders d in the queue's YAML wire form.
func EncodeDescriptor(d Descriptor) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, appErr.MalformedError(d.ID, err.Error())
	}
	w := wireEncode{
		Type: descriptorType,
		Kind: string(d.Kind),
		ID:   d.ID,
		Seq:  d.Seq,
	}
	switch d.Kind {
	case KindMaster:
		w.Data = d.Master
		if d.Priority != 0 {
			p := d.Priority
			w.Priority = &p
		}
	case KindWorker:
		p := d.Priority
		w.Priority = &p
		w.Data = d.Worker
		limits := d.Worker.Limits
		w.Resource = &limits
	default:
		return nil, appErr.UnknownKindError(d.ID, string(d.Kind))
	}
	return yaml.Marshal(&w)
}

// DecodeDescriptor parses the YAML wire form. Payload fields are decoded
// strictly per kind; an unrecognised kind decodes with no payload so the
// scheduler can report it.
func DecodeDescriptor(raw []byte) (Descriptor, error) {
	var w wireDescriptor
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return Descriptor{}, appErr.Wrapf(err, appErr.MalformedDescriptor, "malformed job descriptor: %v", err)
	}
	if w.Type != descriptorType {
		return Descriptor{}, appErr.MalformedError(w.ID, fmt.Sprintf("type must be %q, got %q", descriptorType, w.Type))
	}

	d := Descriptor{
		Kind: Kind(w.Kind),
		ID:   w.ID,
		Seq:  w.Seq,
	}
	if w.Priority != nil {
		d.Priority = *w.Priority
	}

	switch d.Kind {
	case KindMaster:
		var p MasterPayload
		if err := decodeStrict(&w.Data, &p); err != nil {
			return Descriptor{}, appErr.MalformedError(w.ID, "data: "+err.Error())
		}
		d.Master = &p
	case KindWorker:
		if w.Priority == nil {
			return Descriptor{}, appErr.MalformedError(w.ID, "priority is required for WorkerJob")
		}
		if w.Resource == nil {
			return Descriptor{}, appErr.MalformedError(w.ID, "resource is required for WorkerJob")
		}
		var p WorkerPayload
		if err := decodeStrict(&w.Data, &p); err != nil {
			return Descriptor{}, appErr.MalformedError(w.ID, "data: "+err.Error())
		}
		p.Limits = *w.Resource
		d.Worker = &p
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, appErr.MalformedError(w.ID, err.Error())
	}
	return d, nil
}

func decodeStrict(node *yaml.Node, out interface{}) error {
	if node.Kind == 0 {
		return fmt.Errorf("missing")
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping")
	}
	buf, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	return dec.Decode(out)
}
