package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Consecutive guard clauses returning the same value collapse into one.
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; merge the conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	// Same shape inside loops.
	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; merge the conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// Nested loops are a refactor hint, not a hard error. The registry
	// rebuilds and the index embed pass both walk nested collections; keep
	// the inner body small enough to extract.
	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting the inner loop`)
}

func errorf(m dsl.Matcher) {
	m.Match(`errors.New(fmt.Sprintf($*args))`).
		Report(`errors.New(fmt.Sprintf(...)) is fmt.Errorf(...)`).
		Suggest(`fmt.Errorf($args)`)
}
