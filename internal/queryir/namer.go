// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package queryir holds the dialect-agnostic intermediate representation the
three SQL builders and the DOC-DB engine all consume: the identifier/
parameter namer, the predicate and column model, and the per-operation
query structures.
*/
package queryir

import "fmt"

// Namer produces unique table aliases and parameter placeholders from a
// single monotone counter, guaranteeing alias/parameter uniqueness across an
// entire [QueryStructure] — including any nested subqueries — as long as
// they all share the same Namer.
//
// A Namer is single-owner for the lifetime of one request; it is never
// shared between concurrent requests.
type Namer struct {
	counter int
}

// NewNamer returns a fresh, zeroed [Namer].
func NewNamer() *Namer { return &Namer{} }

// NextAlias returns the next monotone table alias, e.g. "table0", "table1".
func (n *Namer) NextAlias() string {
	alias := fmt.Sprintf("table%d", n.counter)
	n.counter++
	return alias
}

// NextParamName returns the next monotone parameter placeholder name, e.g.
// "param0", "param1". Each dialect's Grammar.Placeholder renders it into SQL
// text ("@param0" in T-SQL, a positional "$N" in PG-SQL, a bare "?" in
// MY-SQL) — the name itself is dialect-neutral.
func (n *Namer) NextParamName() string {
	name := fmt.Sprintf("param%d", n.counter)
	n.counter++
	return name
}

// NextSessionParamName returns the next monotone session-context parameter
// name. Nothing in the gateway calls it: the executor's T-SQL
// sp_set_session_context stamping names its parameters session_param0,
// session_param1, … from a counter of its own.
func (n *Namer) NextSessionParamName() string {
	name := fmt.Sprintf("session_param%d", n.counter)
	n.counter++
	return name
}
