package model

import (
	"encoding/json"
	"fmt"

	"github.com/toltec-astro/tolteca-catalog/internal/catalogerr"
)

// ProductMeta is the tagged-sum interface for DataProduct.Metadata.
// Every concrete implementation names itself via Tag(); the closed set
// of valid tags is enforced by DecodeProductMeta at load time.
type ProductMeta interface {
	Tag() string
}

// RawObsMeta is the metadata of a dp_raw_obs product: the quartet plus
// the inferred/combined data kind. The tel ingestor (C6) is the only
// writer that mutates DataKind after creation (OR-combine with LmtTel)
// and the pointing/optics fields below.
type RawObsMeta struct {
	Name      string         `json:"name"`
	Master    string         `json:"master"`
	Obsnum    int            `json:"obsnum"`
	Subobsnum int            `json:"subobsnum"`
	Scannum   int            `json:"scannum"`
	DataKind  ToltecDataKind `json:"data_kind"`
	ObsGoal   string         `json:"obs_goal,omitempty"`

	// Denormalized telescope state, merged in by C6; zero value means
	// "not yet merged".
	Tel *TelState `json:"tel,omitempty"`
}

func (RawObsMeta) Tag() string { return "raw_obs" }

// TelState is the denormalized telescope-metadata block merged into a
// RawObsMeta by the tel-CSV ingestor.
type TelState struct {
	SourceName    string     `json:"source_name,omitempty"`
	ProjectID     string     `json:"project_id,omitempty"`
	ObsPgm        string     `json:"obs_pgm,omitempty"`
	AzDeg         float64    `json:"az_deg"`
	ElDeg         float64    `json:"el_deg"`
	UserAzOffset  float64    `json:"user_az_offset_arcsec"`
	UserElOffset  float64    `json:"user_el_offset_arcsec"`
	PaddleAzOffset float64   `json:"paddle_az_offset_arcsec"`
	PaddleElOffset float64   `json:"paddle_el_offset_arcsec"`
	M2XOffsetMM   float64    `json:"m2_x_offset_mm"`
	M2YOffsetMM   float64    `json:"m2_y_offset_mm"`
	M2ZOffsetMM   float64    `json:"m2_z_offset_mm"`
	Zernike       [7]float64 `json:"m1_zernike_micron"`
	Tau           float64    `json:"tau"`
	CraneInBeam   bool       `json:"crane_in_beam"`
}

// ReducedObsMeta is the metadata of a dp_reduced_obs product.
type ReducedObsMeta struct {
	Name          string `json:"name"`
	RawObsUID     string `json:"raw_obs_uid"`
	PipelineParams map[string]any `json:"pipeline_params,omitempty"`
}

func (ReducedObsMeta) Tag() string { return "reduced_obs" }

// GroupMeta is the metadata of any group product (cal, drivefit,
// focus, astig, named). Suffix distinguishes the group kind used when
// building the group's display name.
type GroupMeta struct {
	Name      string `json:"name"`
	Master    string `json:"master"`
	Obsnum    int    `json:"obsnum,omitempty"`
	StartObsnum int  `json:"start_obsnum,omitempty"`
	EndObsnum   int  `json:"end_obsnum,omitempty"`
	NItems    int    `json:"n_items"`
	Suffix    string `json:"suffix"`
	MemberPKs []int64 `json:"member_pks"`
}

func (GroupMeta) Tag() string { return "group" }

// DecodeProductMeta decodes a JSON column into the ProductMeta named
// by its "tag" field. Unknown tags are a hard error, per data-model
// invariant 6 (closed metadata-tag set).
func DecodeProductMeta(data []byte) (ProductMeta, error) {
	var probe struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeProductMeta", err)
	}
	switch probe.Tag {
	case "raw_obs":
		var m RawObsMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeProductMeta", err)
		}
		return m, nil
	case "reduced_obs":
		var m ReducedObsMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeProductMeta", err)
		}
		return m, nil
	case "group":
		var m GroupMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeProductMeta", err)
		}
		return m, nil
	default:
		return nil, catalogerr.New(catalogerr.InvariantViolation, "DecodeProductMeta",
			fmt.Errorf("unknown product metadata tag %q", probe.Tag))
	}
}

// EncodeProductMeta serializes m with its tag discriminator set.
func EncodeProductMeta(m ProductMeta) ([]byte, error) {
	return encodeTagged(m, m.Tag())
}

// SourceMeta is the tagged-sum interface for DataProductSource.Metadata.
type SourceMeta interface {
	Tag() string
}

// RoachInterfaceMeta describes a detector-network (roach) source file.
type RoachInterfaceMeta struct {
	Interface string         `json:"interface"`
	RoachID   int            `json:"roach_id"`
	NetworkID int            `json:"network_id"`
	DataKind  ToltecDataKind `json:"data_kind"`
}

func (RoachInterfaceMeta) Tag() string { return "roach_interface" }

// TelInterfaceMeta describes a telescope-state source file.
type TelInterfaceMeta struct {
	Interface string `json:"interface"`
}

func (TelInterfaceMeta) Tag() string { return "tel_interface" }

// DecodeSourceMeta mirrors DecodeProductMeta for DataProductSource.Metadata.
func DecodeSourceMeta(data []byte) (SourceMeta, error) {
	var probe struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeSourceMeta", err)
	}
	switch probe.Tag {
	case "roach_interface":
		var m RoachInterfaceMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeSourceMeta", err)
		}
		return m, nil
	case "tel_interface":
		var m TelInterfaceMeta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, catalogerr.New(catalogerr.ParseFailure, "DecodeSourceMeta", err)
		}
		return m, nil
	default:
		return nil, catalogerr.New(catalogerr.InvariantViolation, "DecodeSourceMeta",
			fmt.Errorf("unknown source metadata tag %q", probe.Tag))
	}
}

func EncodeSourceMeta(m SourceMeta) ([]byte, error) {
	return encodeTagged(m, m.Tag())
}

// encodeTagged marshals v to a JSON object and injects "tag" so the
// discriminator always round-trips regardless of the concrete type's
// own json tags.
func encodeTagged(v any, tag string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	obj["tag"] = tag
	return json.Marshal(obj)
}
