package preprocess

import "strings"

// matchCommentAt matches a "--" line comment or "--[[ ]]" block comment
// at pos. Returns the raw matched text, the index just past it, and
// whether a comment was found.
func matchCommentAt(s string, pos int) (string, int, bool) {
	if !strings.HasPrefix(s[pos:], "--") {
		return "", pos, false
	}
	if strings.HasPrefix(s[pos+2:], "[[") {
		closeIdx := strings.Index(s[pos+4:], "]]")
		if closeIdx == -1 {
			return s[pos:], len(s), true
		}
		end := pos + 4 + closeIdx + 2
		return s[pos:end], end, true
	}
	nl := strings.IndexByte(s[pos:], '\n')
	if nl == -1 {
		return s[pos:], len(s), true
	}
	return s[pos : pos+nl], pos + nl, true
}

func (st *parseState) tryComment() bool {
	raw, end, ok := matchCommentAt(st.src, st.pos)
	if !ok {
		return false
	}
	st.out.WriteString(raw)
	st.pending.clear()
	st.pos = end
	return true
}

// tryMacroTag matches "@name" or "@name(args)". For the "@name(args)"
// form a registered rule's on_call fires immediately; a bare "@name", or
// one whose on_call declines, is queued as pending for the construct that
// follows it.
func (st *parseState) tryMacroTag() bool {
	if st.pos >= len(st.src) || st.src[st.pos] != '@' {
		return false
	}
	name := matchIdent(st.src, st.pos+1)
	if name == "" {
		return false
	}
	end := st.pos + 1 + len(name)
	var args []Arg
	hasArgList := false
	if end < len(st.src) && st.src[end] == '(' {
		closeIdx := findMatchingDelim(st.src, end, '(', ')')
		if closeIdx == -1 {
			return false
		}
		args = parseDecoratorArgs(st.src[end+1 : closeIdx])
		end = closeIdx + 1
		hasArgList = true
	}
	raw := st.src[st.pos:end]
	st.pending.clear()

	rule, found := st.lookupRule(name)
	if !found {
		st.out.WriteString(raw)
		st.pos = end
		return true
	}
	if rule.OnCall != nil && hasArgList {
		ctx := &Ctx{SymbolName: name, DecoratorName: name, DecoratorArgs: args, AccessType: AccessDirect}
		if out, ok := rule.OnCall(ctx); ok {
			st.out.WriteString(out)
			st.pos = end
			return true
		}
	}
	st.pending = pendingTag{name: name, args: args}
	st.pos = end
	return true
}

// tryLocalDef matches "local name" or "local name = expr" up to the end
// of the statement.
func (st *parseState) tryLocalDef() bool {
	if !matchKeyword(st.src, st.pos, "local") {
		return false
	}
	afterKw := skipSpaces(st.src, st.pos+len("local"))
	name := matchIdent(st.src, afterKw)
	if name == "" {
		return false
	}
	end := findStatementEnd(st.src, st.pos)
	raw := st.src[st.pos:end]

	eqIdx := findTopLevelAssignEq(raw)

	if st.pending.isSet() {
		st.pp.tracked[name] = trackedSymbol{decoratorName: st.pending.name, args: st.pending.args}
		rule, found := st.lookupRule(st.pending.name)
		if found && rule.OnDef != nil {
			valRaw := ""
			if eqIdx != -1 {
				valRaw = strings.TrimSpace(raw[eqIdx+1:])
			}
			processedVal, _ := st.pp.Process(valRaw)
			ctx := &Ctx{
				SymbolName:      name,
				DecoratorName:   st.pending.name,
				DecoratorArgs:   st.pending.args,
				IsLocalDef:      true,
				AssignmentValue: processedVal,
			}
			if out, ok := rule.OnDef(ctx); ok {
				st.out.WriteString("local " + out)
				st.pending.clear()
				st.pos = end
				return true
			}
		}
	}
	st.out.WriteString(raw)
	st.pending.clear()
	st.pos = end
	return true
}

// tryFunctionDef matches "function name(args) body end".
func (st *parseState) tryFunctionDef() bool {
	if !matchKeyword(st.src, st.pos, "function") {
		return false
	}
	afterKw := skipSpaces(st.src, st.pos+len("function"))
	name := matchIdent(st.src, afterKw)
	if name == "" {
		return false
	}
	afterName := skipSpaces(st.src, afterKw+len(name))
	if afterName >= len(st.src) || st.src[afterName] != '(' {
		return false
	}
	closeParen := findMatchingDelim(st.src, afterName, '(', ')')
	if closeParen == -1 {
		return false
	}
	endKwStart, endKwEnd := findMatchingEnd(st.src, closeParen+1)
	if endKwStart == -1 {
		return false
	}
	raw := st.src[st.pos:endKwEnd]
	argsRaw := st.src[afterName+1 : closeParen]
	body := st.src[closeParen+1 : endKwStart]

	if st.pending.isSet() {
		st.pp.tracked[name] = trackedSymbol{decoratorName: st.pending.name, args: st.pending.args}
		rule, found := st.lookupRule(st.pending.name)
		if found && rule.OnDef != nil {
			fArgs := trimArgs(splitTopLevel(argsRaw, ','))
			processedBody, _ := st.pp.Process(body)
			ctx := &Ctx{
				SymbolName:    name,
				DecoratorName: st.pending.name,
				DecoratorArgs: st.pending.args,
				IsFuncDef:     true,
				FunctionArgs:  fArgs,
				FunctionBody:  processedBody,
			}
			if out, ok := rule.OnDef(ctx); ok {
				st.out.WriteString(out)
				st.pending.clear()
				st.pos = endKwEnd
				return true
			}
		}
	}
	st.out.WriteString(raw)
	st.pending.clear()
	st.pos = endKwEnd
	return true
}

// tryRawTableDef matches "name { fields }" (Lua's sugar for a single
// table-literal call argument) immediately following a pending macro.
func (st *parseState) tryRawTableDef() bool {
	name := matchIdent(st.src, st.pos)
	if name == "" {
		return false
	}
	afterName := skipSpaces(st.src, st.pos+len(name))
	if afterName >= len(st.src) || st.src[afterName] != '{' {
		return false
	}
	closeBrace := findMatchingDelim(st.src, afterName, '{', '}')
	if closeBrace == -1 {
		return false
	}
	end := closeBrace + 1
	raw := st.src[st.pos:end]
	body := st.src[afterName : closeBrace+1]

	if !st.pending.isSet() {
		return false
	}

	rule, found := st.lookupRule(st.pending.name)
	if found && rule.OnDef != nil {
		inner := ""
		if len(body) >= 2 {
			inner = body[1 : len(body)-1]
		}
		ctx := &Ctx{
			SymbolName:    name,
			DecoratorName: st.pending.name,
			DecoratorArgs: st.pending.args,
			IsTableDef:    true,
			TableFields:   []string{inner},
		}
		if out, ok := rule.OnDef(ctx); ok {
			st.out.WriteString(out)
			st.pending.clear()
			st.pos = end
			return true
		}
	}
	st.out.WriteString(raw)
	st.pending.clear()
	st.pos = end
	return true
}

// tryAssignment matches "lhs = rhs" where lhs is a plain identifier or
// a dot/bracket access chain, recursively preprocessing the rhs.
func (st *parseState) tryAssignment() bool {
	chain, afterChain := matchAccessChain(st.src, st.pos)
	if chain == "" {
		return false
	}
	eqPos := skipSpaces(st.src, afterChain)
	if eqPos >= len(st.src) || st.src[eqPos] != '=' || isComparisonEq(st.src, eqPos) {
		return false
	}

	end := findStatementEnd(st.src, eqPos+1)
	lhs := st.src[st.pos : eqPos+1]
	rhsRaw := strings.TrimSpace(st.src[eqPos+1 : end])
	processedRHS, _ := st.pp.Process(rhsRaw)

	sym, atype, key := parseAccess(chain)
	if ts, found := st.pp.tracked[sym]; found {
		rule, ok := st.lookupRule(ts.decoratorName)
		if ok && rule.OnSet != nil {
			memberKey := key
			if atype == AccessDirect {
				memberKey = ""
			}
			ctx := &Ctx{
				SymbolName:      sym,
				DecoratorName:   ts.decoratorName,
				AccessType:      atype,
				MemberKey:       memberKey,
				AssignmentValue: processedRHS,
			}
			if out, ok2 := rule.OnSet(ctx); ok2 {
				st.out.WriteString(out)
				st.pos = end
				return true
			}
		}
	}
	st.out.WriteString(lhs + processedRHS)
	st.pos = end
	return true
}

func isComparisonEq(s string, eqPos int) bool {
	if eqPos+1 < len(s) && s[eqPos+1] == '=' {
		return true
	}
	if eqPos > 0 {
		switch s[eqPos-1] {
		case '=', '~', '<', '>':
			return true
		}
	}
	return false
}

func findTopLevelAssignEq(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '"':
			end := skipStringLiteral(s, i)
			if end == -1 {
				return -1
			}
			i = end - 1
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == '=' && !isComparisonEq(s, i):
			return i
		}
	}
	return -1
}

// tryUsageID matches a bare identifier or access chain used as a value
// (a read), dispatching to a tracked symbol's or registered rule's
// on_get (or on_call, for colon method calls on a tracked symbol).
func (st *parseState) tryUsageID() bool {
	chain, end := matchAccessChain(st.src, st.pos)
	if chain == "" {
		return false
	}
	raw := chain
	sym, atype, key := parseAccess(chain)

	if st.pending.isSet() {
		rule, found := st.lookupRule(st.pending.name)
		if found && rule.OnGet != nil {
			ctx := &Ctx{
				SymbolName:    sym,
				DecoratorName: st.pending.name,
				DecoratorArgs: st.pending.args,
				AccessType:    atype,
			}
			if out, ok := rule.OnGet(ctx); ok {
				st.out.WriteString(out)
				st.pending.clear()
				st.pos = end
				return true
			}
		}
		st.pending.clear()
	}

	if ts, found := st.pp.tracked[sym]; found {
		rule, ok := st.lookupRule(ts.decoratorName)
		if ok {
			if atype == AccessColon && rule.OnCall != nil {
				ctx := &Ctx{SymbolName: sym, DecoratorName: ts.decoratorName, AccessType: atype, MemberKey: key}
				if out, ok2 := rule.OnCall(ctx); ok2 {
					st.out.WriteString(out)
					st.pos = end
					return true
				}
			} else if rule.OnGet != nil {
				memberKey := key
				if atype == AccessDirect {
					memberKey = ""
				}
				ctx := &Ctx{SymbolName: sym, DecoratorName: ts.decoratorName, AccessType: atype, MemberKey: memberKey}
				if out, ok2 := rule.OnGet(ctx); ok2 {
					st.out.WriteString(out)
					st.pos = end
					return true
				}
			}
		}
	}

	if rule, found := st.lookupRule(sym); found && rule.OnGet != nil {
		ctx := &Ctx{SymbolName: sym, AccessType: atype}
		if out, ok := rule.OnGet(ctx); ok {
			st.out.WriteString(out)
			st.pos = end
			return true
		}
	}

	st.out.WriteString(raw)
	st.pos = end
	return true
}

// tryStringLiteralUsage matches a quoted string literal immediately
// following a pending macro tag, e.g. @asset "textures/hero.png".
func (st *parseState) tryStringLiteralUsage() bool {
	if st.pos >= len(st.src) {
		return false
	}
	c := st.src[st.pos]
	if c != '\'' && c != '"' {
		return false
	}
	end := skipStringLiteral(st.src, st.pos)
	if end == -1 {
		return false
	}
	raw := st.src[st.pos:end]

	if st.pending.isSet() {
		rule, found := st.lookupRule(st.pending.name)
		if found && rule.OnGet != nil {
			content := ""
			if len(raw) >= 2 {
				content = raw[1 : len(raw)-1]
			}
			ctx := &Ctx{
				SymbolName:    content,
				DecoratorName: st.pending.name,
				DecoratorArgs: st.pending.args,
				AccessType:    AccessDirect,
			}
			if out, ok := rule.OnGet(ctx); ok {
				st.out.WriteString(out)
				st.pending.clear()
				st.pos = end
				return true
			}
		}
		st.pending.clear()
	}
	st.out.WriteString(raw)
	st.pos = end
	return true
}
