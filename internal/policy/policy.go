// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package policy implements the Authorization Policy Processor (spec.md
§4.3): it resolves the configured database-policy text for
(entity, role, operation), parses it as a filter fragment, substitutes
claim values from the authenticated principal, and injects the resulting
predicate into the query structure under each elemental operation.
*/
package policy

import (
	"fmt"

	"github.com/taibuivan/dataapi/internal/filter"
	"github.com/taibuivan/dataapi/internal/metadata"
	"github.com/taibuivan/dataapi/internal/odata"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/queryir"
)

// TextResolver resolves the configured policy text template for a single
// (entity, role, elemental operation) triple. An empty string (and true)
// means "no policy configured" — the elemental operation contributes no
// predicate, which is distinct from a lookup miss.
type TextResolver interface {
	PolicyText(entityName, role string, op queryir.Operation) (string, bool)
}

// ItemFields exposes the in-flight row being written, for `@item.*`
// references in Create/Update policy text. nil is valid for Read/Delete.
type ItemFields interface {
	ItemField(fieldName string) (any, bool)
}

// Processor evaluates database policies against a [queryir.QueryStructure]
// implementor that also exposes the mutators every structure variant has
// (AddParameter, Column) — see [StructureTarget].
type Processor struct {
	Policies TextResolver
}

// New constructs a [Processor].
func New(resolver TextResolver) *Processor {
	return &Processor{Policies: resolver}
}

// StructureTarget is the subset of a queryir structure variant the
// processor needs: parameter minting, column resolution, and policy
// attachment. Every NewXStructure constructor in [queryir] satisfies this
// through its embedded base.
type StructureTarget interface {
	AddParameter(value any, backingColumn string) string
	Column(exposedName string) (queryir.Column, error)
	SetDBPolicy(op queryir.Operation, pred *queryir.Predicate)
}

// Apply evaluates the database policy for every elemental operation
// requestOp expands to, against entityName/role/caller, and attaches each
// resulting predicate to target. item may be nil when the operation does
// not write a row (Read, Delete).
//
// Step 1 of spec.md §4.3 — requiring the role header to be present at all —
// is enforced upstream by [middleware.RequireRoleHeader] before a request
// ever reaches here; by the time Apply runs, caller.Role is known non-empty.
func (p *Processor) Apply(
	entityName, requestOp string,
	source *metadata.SourceDefinition,
	alias string,
	caller *principal.Principal,
	item ItemFields,
	target StructureTarget,
) error {
	if caller == nil || caller.Role == "" {
		return apperr.AuthorizationCheckFailed("Missing required " + principal.RoleHeader + " header")
	}

	for _, elemental := range queryir.ElementalOperations(requestOp) {
		text, found := p.Policies.PolicyText(entityName, caller.Role, elemental)
		if !found || text == "" {
			continue
		}

		expr, err := filter.Parse(text)
		if err != nil {
			return apperr.AuthorizationCheckFailed("Malformed database policy: " + err.Error())
		}

		visitor := &odata.Visitor{
			Target:             odata.Target{Source: source, Alias: alias},
			Params:             target,
			Claims:             callerClaimResolver{caller},
			Item:               item,
			AllowClaimsAndItem: true,
		}

		pred, err := visitor.Visit(expr)
		if err != nil {
			return apperr.AuthorizationCheckFailed(fmt.Sprintf("Database policy evaluation failed for %s.%s: %s", entityName, elemental, err.Error()))
		}

		target.SetDBPolicy(elemental, pred)
	}

	return nil
}

// callerClaimResolver adapts a [*principal.Principal] to [odata.ClaimResolver].
type callerClaimResolver struct {
	caller *principal.Principal
}

func (c callerClaimResolver) Claim(claimType string) (string, bool) {
	return c.caller.Claim(claimType)
}
