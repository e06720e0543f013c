// SPDX-License-Identifier: AGPL-3.0-or-later

package projection

import (
	"strings"
	"testing"

	"crucible/internal/ir"
)

func mustParse(t *testing.T, yamlText string) Spec {
	t.Helper()
	spec, err := ParseSpec([]byte(yamlText))
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	return spec
}

func siteObject(attrs ir.Attrs) ir.Object {
	return ir.Object{
		Uid:      ir.UUIDv5("dcim.site", "slug=fra1"),
		TypeName: "dcim.site",
		Key:      ir.Key{"slug": "fra1"},
		Attrs:    attrs,
	}
}

func TestApply_StripPrefixCustomFields(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: model-fields
    on_type: dcim.site
    from_attrs:
      prefix: "model."
    to:
      custom_fields:
        strategy: strip_prefix
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{
		"model.fabric": "clos",
		"slug":         "fra1",
	})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := out.Objects[0].Projection.CustomFields
	if got["fabric"] != "clos" {
		t.Fatalf("expected custom_fields.fabric=clos, got %v", got)
	}
	if _, present := got["slug"]; present {
		t.Fatalf("expected slug to be excluded by the model. prefix, got %v", got)
	}
	if _, touched := out.Objects[0].Projection.CustomFields["model.fabric"]; touched {
		t.Fatalf("prefix should be stripped from the target field name, got %v", got)
	}
}

func TestApply_ExplicitCustomFields(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: explicit-fields
    on_type: dcim.site
    from_attrs:
      map:
        fabric_role: x.fabric
    to:
      custom_fields:
        strategy: explicit
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"x.fabric": "spine"})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Objects[0].Projection.CustomFields["fabric_role"] != "spine" {
		t.Fatalf("expected fabric_role=spine, got %v", out.Objects[0].Projection.CustomFields)
	}
}

func TestApply_DirectCustomFields(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: direct-field
    on_type: dcim.site
    from_attrs:
      key: region
    to:
      custom_fields:
        strategy: direct
        field: region_code
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"region": "eu-west"})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Objects[0].Projection.CustomFields["region_code"] != "eu-west" {
		t.Fatalf("expected region_code=eu-west, got %v", out.Objects[0].Projection.CustomFields)
	}
}

func TestApply_TransformPipelineStringifyAndDefault(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: asn-field
    on_type: dcim.site
    from_attrs:
      key: asn
      transform:
        - stringify
    to:
      custom_fields:
        strategy: direct
  - name: region-default
    on_type: dcim.site
    from_attrs:
      key: region
      transform:
        - default: "unknown"
    to:
      custom_fields:
        strategy: direct
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"asn": 65000, "region": nil})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := out.Objects[0].Projection.CustomFields
	if got["asn"] != "65000" {
		t.Fatalf("expected asn stringified to \"65000\", got %v", got["asn"])
	}
	if got["region"] != "unknown" {
		t.Fatalf("expected region defaulted to \"unknown\", got %v", got["region"])
	}
}

func TestApply_DropIfNullOmitsAttr(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: optional-field
    on_type: dcim.site
    from_attrs:
      key: notes
      transform:
        - drop_if_null
    to:
      custom_fields:
        strategy: direct
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"notes": nil})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, present := out.Objects[0].Projection.CustomFields["notes"]; present {
		t.Fatalf("expected notes dropped by drop_if_null, got %v", out.Objects[0].Projection.CustomFields)
	}
}

func TestApply_TagsUnionAndHasTagsEmptySet(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: role-tags
    on_type: dcim.site
    from_attrs:
      key: roles
    to:
      tags:
        source: value
`)
	inv := ir.Inventory{Objects: []ir.Object{
		siteObject(ir.Attrs{"roles": []any{"edge", "pop"}}),
		{Uid: ir.UUIDv5("dcim.site", "slug=ams1"), TypeName: "dcim.site", Key: ir.Key{"slug": "ams1"}, Attrs: ir.Attrs{}},
	}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.Objects[0].Projection.HasTags {
		t.Fatalf("expected HasTags=true for tagged object")
	}
	want := []string{"edge", "pop"}
	got := out.Objects[0].Projection.Tags
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected sorted tags %v, got %v", want, got)
	}
	if !out.Objects[1].Projection.HasTags {
		t.Fatalf("expected HasTags=true even when roles attr is absent (empty tag set still touched)")
	}
	if len(out.Objects[1].Projection.Tags) != 0 {
		t.Fatalf("expected empty tag set, got %v", out.Objects[1].Projection.Tags)
	}
}

func TestApply_LocalContextShallowMultiRuleMerge(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: ctx-fabric
    on_type: dcim.site
    from_attrs:
      key: fabric
    to:
      local_context:
        root: network.topology
        strategy: direct
  - name: ctx-region
    on_type: dcim.site
    from_attrs:
      key: region
    to:
      local_context:
        root: network.topology
        strategy: direct
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"fabric": "clos", "region": "eu-west"})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.Objects[0].Projection.HasContext {
		t.Fatalf("expected HasContext=true")
	}
	ctx, ok := out.Objects[0].Projection.LocalContext.(map[string]any)
	if !ok {
		t.Fatalf("expected local_context to be a map, got %T", out.Objects[0].Projection.LocalContext)
	}
	topology, ok := ctx["network"].(map[string]any)["topology"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested network.topology map, got %v", ctx)
	}
	if topology["fabric"] != "clos" || topology["region"] != "eu-west" {
		t.Fatalf("expected both rules merged under network.topology, got %v", topology)
	}
}

func TestExtractInverse_StripPrefixRoundTrips(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: model-fields
    on_type: dcim.site
    from_attrs:
      prefix: "model."
    to:
      custom_fields:
        strategy: strip_prefix
`)
	original := ir.Attrs{"model.fabric": "clos", "model.role": "spine"}
	inv := ir.Inventory{Objects: []ir.Object{siteObject(original)}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	attrs, warnings, err := Extract(spec, "dcim.site", out.Objects[0].Projection)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if attrs["x.model.fabric"] != "clos" || attrs["x.model.role"] != "spine" {
		t.Fatalf("expected round-tripped x.model.* attrs, got %v", attrs)
	}
}

func TestExtractInverse_ExplicitRoundTrips(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: explicit-fields
    on_type: dcim.site
    from_attrs:
      map:
        fabric_role: x.fabric
    to:
      custom_fields:
        strategy: explicit
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"x.fabric": "spine"})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	attrs, warnings, err := Extract(spec, "dcim.site", out.Objects[0].Projection)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if attrs["x.x.fabric"] != "spine" {
		t.Fatalf("expected round-tripped x.x.fabric, got %v", attrs)
	}
}

func TestExtract_UnclaimedCustomFieldPassesThroughWithWarning(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: model-fields
    on_type: dcim.site
    from_attrs:
      map:
        fabric: model.fabric
    to:
      custom_fields:
        strategy: explicit
`)
	projection := ir.ProjectionData{CustomFields: map[string]any{
		"fabric":      "clos",
		"unknown_key": "mystery",
	}}

	attrs, warnings, err := Extract(spec, "dcim.site", projection)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if attrs["x.model.fabric"] != "clos" {
		t.Fatalf("expected claimed field to extract normally, got %v", attrs)
	}
	if attrs["x.unmapped.unknown_key"] != "mystery" {
		t.Fatalf("expected unclaimed field to pass through as x.unmapped.unknown_key, got %v", attrs)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning for the unclaimed field, got %v", warnings)
	}
}

func TestExtractInverse_TagsRoundTrips(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: fabric-tags
    on_type: dcim.site
    from_attrs:
      key: "x.tags"
    to:
      tags:
        source: value
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"x.tags": []any{"clos", "spine"}})}}

	out, err := Apply(inv, spec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	attrs, warnings, err := Extract(spec, "dcim.site", out.Objects[0].Projection)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	tags, ok := attrs["x.x.tags"].([]string)
	if !ok || len(tags) != 2 || tags[0] != "clos" || tags[1] != "spine" {
		t.Fatalf("expected round-tripped x.x.tags, got %v", attrs["x.x.tags"])
	}
}

func TestExtractInverse_TagsInferKeyFromPrefix(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: fabric-tags
    on_type: dcim.site
    from_attrs:
      prefix: "model."
    to:
      tags:
        source: value
`)
	projection := ir.ProjectionData{Tags: []string{"fabric"}, HasTags: true}

	attrs, warnings, err := Extract(spec, "dcim.site", projection)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	tags, ok := attrs["x.model.tags"].([]string)
	if !ok || len(tags) != 1 || tags[0] != "fabric" {
		t.Fatalf("expected inferred x.model.tags, got %v", attrs["x.model.tags"])
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "inferred tag key") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an 'inferred tag key' warning, got %v", warnings)
	}
}

func TestExtract_UnclaimedTagsPassThroughWithWarning(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: model-fields
    on_type: dcim.site
    from_attrs:
      prefix: "model."
    to:
      custom_fields:
        strategy: strip_prefix
`)
	projection := ir.ProjectionData{
		CustomFields: map[string]any{"fabric": "clos"},
		Tags:         []string{"leaf"},
		HasTags:      true,
	}

	attrs, warnings, err := Extract(spec, "dcim.site", projection)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	tags, ok := attrs["x.unmapped.tags"].([]string)
	if !ok || len(tags) != 1 || tags[0] != "leaf" {
		t.Fatalf("expected unclaimed tags to pass through as x.unmapped.tags, got %v", attrs["x.unmapped.tags"])
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "tags are not claimed by any rule") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 'tags are not claimed' warning, got %v", warnings)
	}
}

func TestValidateStrict_S6RejectsUndeclaredCustomField(t *testing.T) {
	spec := mustParse(t, `
rules:
  - name: model-fields
    on_type: dcim.site
    from_attrs:
      prefix: "model."
    to:
      custom_fields:
        strategy: strip_prefix
`)
	inv := ir.Inventory{Objects: []ir.Object{siteObject(ir.Attrs{"model.fabric": "clos"})}}
	caps := ir.BackendCapabilities{CustomFieldsByType: map[ir.TypeName][]string{"dcim.site": {}}}

	err := ValidateStrict(spec, inv, caps)
	if err == nil {
		t.Fatalf("expected strict validation to fail")
	}
	msg := err.Error()
	for _, want := range []string{"model-fields", "dcim.site", "model.fabric", "fabric"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected error to mention %q, got: %s", want, msg)
		}
	}
}

func TestComputeMissing_ReportsUndeclaredFieldsAndTags(t *testing.T) {
	caps := ir.BackendCapabilities{
		CustomFieldsByType: map[ir.TypeName][]string{"dcim.site": {"fabric"}},
		Tags:               []string{"edge"},
	}
	projected := ir.ProjectedInventory{Objects: []ir.ProjectedObject{
		{
			Base: ir.Object{TypeName: "dcim.site"},
			Projection: ir.ProjectionData{
				CustomFields: map[string]any{"fabric": "clos", "region_code": "eu-west"},
				Tags:         []string{"edge", "pop"},
			},
		},
	}}

	missingFields, missingTags := ComputeMissing(caps, projected)
	if len(missingFields["dcim.site"]) != 1 || missingFields["dcim.site"][0] != "region_code" {
		t.Fatalf("expected missing custom field region_code, got %v", missingFields)
	}
	if len(missingTags) != 1 || missingTags[0] != "pop" {
		t.Fatalf("expected missing tag pop, got %v", missingTags)
	}
}
