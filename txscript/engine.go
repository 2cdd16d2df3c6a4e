// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"fmt"

	"github.com/coreledger/btconsensus/crypto"
)

// MaxScriptSize is the largest serialised script this interpreter will
// parse, matching the wire-level limit in spec §6.
const MaxScriptSize = 10000

// MaxStackSize bounds the combined depth of the main and alternate
// stacks, guarding against a script that grows state without bound.
const MaxStackSize = 1000

// MaxOpsPerScript bounds the number of non-push operations a single
// script may execute.
const MaxOpsPerScript = 201

// MaxPubKeysPerMultisig bounds the N in an m-of-n CHECKMULTISIG.
const MaxPubKeysPerMultisig = 20

// SigChecker abstracts transaction-specific signature verification away
// from the interpreter: computing a sighash requires serialising the
// enclosing transaction, which the interpreter itself has no business
// knowing how to do (spec §9 "dependency injection"). Callers in the
// validate package supply an implementation bound to one particular
// input of one particular transaction.
type SigChecker interface {
	// CheckSig reports whether sig is a valid signature over the
	// current transaction/input by the key pubKey, given that subScript
	// is the portion of the locking script active after the most recent
	// OP_CODESEPARATOR.
	CheckSig(sig, pubKey, subScript []byte) bool

	// CheckLockTime reports whether the transaction's own lock time and
	// the input's sequence number satisfy the value an
	// OP_CHECKLOCKTIMEVERIFY script demands. lockTime is the script
	// operand decoded to an int64; it is not a scriptNum because
	// SigChecker is implemented outside this package.
	CheckLockTime(lockTime int64) bool

	// CheckSequence reports whether the input's sequence number
	// satisfies the value an OP_CHECKSEQUENCEVERIFY script demands.
	CheckSequence(sequence int64) bool
}

// ParsedOpcode is a single decoded script element: an opcode together
// with any data it pushes.
type ParsedOpcode struct {
	Op   Opcode
	Data []byte
}

// ScriptFlags enables optional verification rules on top of the core
// interpreter semantics.
type ScriptFlags uint32

const (
	ScriptVerifyNone ScriptFlags = 0

	// ScriptVerifyDERSig names the strict-DER signature rule. The
	// interpreter does not inspect it: a signature's encoding is checked
	// only by whatever the SigChecker does with it.
	ScriptVerifyDERSig ScriptFlags = 1 << iota

	// ScriptVerifyMinimalData requires every data push to use the
	// shortest possible encoding and every numeric operand to be
	// minimally encoded.
	ScriptVerifyMinimalData

	// ScriptVerifyCleanStack requires exactly one, truthy item remain
	// on the stack after the locking script finishes.
	ScriptVerifyCleanStack

	// ScriptVerifyCheckLockTimeVerify enables OP_CHECKLOCKTIMEVERIFY;
	// otherwise it behaves as a reserved no-op (OP_NOP2).
	ScriptVerifyCheckLockTimeVerify

	// ScriptVerifyCheckSequenceVerify enables OP_CHECKSEQUENCEVERIFY;
	// otherwise it behaves as a reserved no-op (OP_NOP3).
	ScriptVerifyCheckSequenceVerify

	// ScriptVerifyNullFail requires a failed CHECKSIG/CHECKMULTISIG to
	// have been supplied an empty signature, rejecting scripts that
	// smuggle a non-empty-but-invalid signature past a lax verifier.
	ScriptVerifyNullFail
)

func (f ScriptFlags) has(bit ScriptFlags) bool { return f&bit != 0 }

// Engine executes one script (a concatenation of an unlocking script and
// a locking script) against a stack machine, per spec §4.2.
type Engine struct {
	flags   ScriptFlags
	checker SigChecker
	crypto  crypto.Provider

	scripts    [][]ParsedOpcode
	scriptIdx  int
	opIdx      int
	lastCodeSep int

	stack    [][]byte
	altStack [][]byte

	condStack []int // 1 = executing, 0 = skipping-this-branch, -1 = inside a non-executing enclosing branch

	numOps int
}

const (
	condTrue  = 1
	condFalse = 0
	condSkip  = -1
)

// NewEngine parses sigScript and pkScript and returns an Engine ready to
// run them in sequence. provider supplies the hash primitives used by
// the crypto opcodes; checker supplies signature and locktime checks.
func NewEngine(sigScript, pkScript []byte, flags ScriptFlags, checker SigChecker, provider crypto.Provider) (*Engine, error) {
	if len(sigScript) > MaxScriptSize || len(pkScript) > MaxScriptSize {
		return nil, fmt.Errorf("txscript: script exceeds %d bytes", MaxScriptSize)
	}

	sigOps, err := parseScript(sigScript)
	if err != nil {
		return nil, err
	}
	if flags.has(ScriptVerifyMinimalData) {
		if err := checkPushOnly(sigOps); err != nil {
			return nil, err
		}
	}

	pkOps, err := parseScript(pkScript)
	if err != nil {
		return nil, err
	}

	return &Engine{
		flags:    flags,
		checker:  checker,
		crypto:   provider,
		scripts:  [][]ParsedOpcode{sigOps, pkOps},
		stack:    make([][]byte, 0, 16),
		altStack: make([][]byte, 0, 16),
	}, nil
}

// checkPushOnly enforces that a script consists only of data pushes, the
// rule normally applied to the unlocking script so that it cannot smuggle
// in executable opcodes.
func checkPushOnly(ops []ParsedOpcode) error {
	for _, op := range ops {
		if op.Op > OP_16 {
			return fmt.Errorf("txscript: signature script contains a non-push opcode")
		}
	}
	return nil
}

// parseScript decodes raw into a sequence of ParsedOpcode, resolving
// direct pushes (opcodes 0x01-0x4b) and the three PUSHDATA forms.
func parseScript(raw []byte) ([]ParsedOpcode, error) {
	var ops []ParsedOpcode
	i := 0
	for i < len(raw) {
		op := Opcode(raw[i])
		i++

		switch {
		case op >= 0x01 && op <= 0x4b:
			n := int(op)
			if i+n > len(raw) {
				return nil, fmt.Errorf("txscript: push of %d bytes exceeds script bounds", n)
			}
			ops = append(ops, ParsedOpcode{Op: op, Data: raw[i : i+n]})
			i += n

		case op == OP_PUSHDATA1:
			if i+1 > len(raw) {
				return nil, fmt.Errorf("txscript: truncated OP_PUSHDATA1")
			}
			n := int(raw[i])
			i++
			if i+n > len(raw) {
				return nil, fmt.Errorf("txscript: OP_PUSHDATA1 exceeds script bounds")
			}
			ops = append(ops, ParsedOpcode{Op: op, Data: raw[i : i+n]})
			i += n

		case op == OP_PUSHDATA2:
			if i+2 > len(raw) {
				return nil, fmt.Errorf("txscript: truncated OP_PUSHDATA2")
			}
			n := int(raw[i]) | int(raw[i+1])<<8
			i += 2
			if i+n > len(raw) {
				return nil, fmt.Errorf("txscript: OP_PUSHDATA2 exceeds script bounds")
			}
			ops = append(ops, ParsedOpcode{Op: op, Data: raw[i : i+n]})
			i += n

		case op == OP_PUSHDATA4:
			if i+4 > len(raw) {
				return nil, fmt.Errorf("txscript: truncated OP_PUSHDATA4")
			}
			n := int(raw[i]) | int(raw[i+1])<<8 | int(raw[i+2])<<16 | int(raw[i+3])<<24
			i += 4
			if n < 0 || i+n > len(raw) {
				return nil, fmt.Errorf("txscript: OP_PUSHDATA4 exceeds script bounds")
			}
			ops = append(ops, ParsedOpcode{Op: op, Data: raw[i : i+n]})
			i += n

		default:
			if disabledOpcodes[op] {
				return nil, fmt.Errorf("txscript: disabled opcode 0x%02x", byte(op))
			}
			ops = append(ops, ParsedOpcode{Op: op})
		}
	}
	return ops, nil
}

// Execute runs the unlocking script followed by the locking script and
// reports whether the combined run leaves the stack in a successful
// state. It never panics: malformed or hostile scripts surface as an
// error.
func (e *Engine) Execute() (bool, error) {
	for e.scriptIdx < len(e.scripts) {
		ops := e.scripts[e.scriptIdx]
		for e.opIdx < len(ops) {
			pop := ops[e.opIdx]
			if err := e.step(pop); err != nil {
				return false, err
			}
			if len(e.stack)+len(e.altStack) > MaxStackSize {
				return false, fmt.Errorf("txscript: stack depth exceeds %d items", MaxStackSize)
			}
			e.opIdx++
		}
		if len(e.condStack) != 0 {
			return false, fmt.Errorf("txscript: unbalanced conditional at end of script")
		}
		e.scriptIdx++
		e.opIdx = 0
		e.lastCodeSep = 0
	}

	if e.flags.has(ScriptVerifyCleanStack) && len(e.stack) != 1 {
		return false, fmt.Errorf("txscript: clean-stack rule violated: %d items remain", len(e.stack))
	}
	if len(e.stack) == 0 {
		return false, fmt.Errorf("txscript: script finished with an empty stack")
	}
	return isTrue(e.stack[len(e.stack)-1]), nil
}

// executing reports whether the interpreter is inside a taken branch of
// every enclosing OP_IF/OP_NOTIF, i.e. whether the current opcode should
// actually run rather than merely be skipped over.
func (e *Engine) executing() bool {
	for _, c := range e.condStack {
		if c != condTrue {
			return false
		}
	}
	return true
}

func (e *Engine) step(pop ParsedOpcode) error {
	// Flow-control opcodes always run, even inside a skipped branch, so
	// that nested if/else/endif stays balanced.
	switch pop.Op {
	case OP_IF, OP_NOTIF:
		return e.execIf(pop)
	case OP_ELSE:
		return e.execElse()
	case OP_ENDIF:
		return e.execEndif()
	}

	if !e.executing() {
		return nil
	}

	if pop.Op > OP_16 {
		e.numOps++
		if e.numOps > MaxOpsPerScript {
			return fmt.Errorf("txscript: script exceeds %d operations", MaxOpsPerScript)
		}
	}

	if pop.Data != nil || pop.Op <= OP_0 {
		return e.execPush(pop)
	}
	if isSmallInt(pop.Op) {
		e.push(scriptNum(asSmallInt(pop.Op)).Bytes())
		return nil
	}
	if pop.Op == OP_1NEGATE {
		e.push(scriptNum(-1).Bytes())
		return nil
	}

	return e.execOp(pop.Op)
}

func (e *Engine) execPush(pop ParsedOpcode) error {
	if e.flags.has(ScriptVerifyMinimalData) {
		if err := checkMinimalPush(pop); err != nil {
			return err
		}
	}
	e.push(pop.Data)
	return nil
}

// checkMinimalPush rejects a push that could have been encoded more
// compactly, e.g. OP_PUSHDATA1 used for a 3-byte operand that a direct
// push opcode could carry.
func checkMinimalPush(pop ParsedOpcode) error {
	n := len(pop.Data)
	switch {
	case n == 0 && pop.Op != OP_0:
		return fmt.Errorf("txscript: empty push not encoded as OP_0")
	case n == 1 && pop.Data[0] >= 1 && pop.Data[0] <= 16 && pop.Op != Opcode(0x50+pop.Data[0]):
		return fmt.Errorf("txscript: single-byte small int not encoded as OP_1..OP_16")
	case n <= 75 && pop.Op != Opcode(n):
		return fmt.Errorf("txscript: push of %d bytes not minimally encoded", n)
	case n > 75 && n <= 255 && pop.Op != OP_PUSHDATA1:
		return fmt.Errorf("txscript: push of %d bytes should use OP_PUSHDATA1", n)
	case n > 255 && n <= 65535 && pop.Op != OP_PUSHDATA2:
		return fmt.Errorf("txscript: push of %d bytes should use OP_PUSHDATA2", n)
	}
	return nil
}

func (e *Engine) execIf(pop ParsedOpcode) error {
	cond := condSkip
	if e.executing() {
		if len(e.stack) < 1 {
			return fmt.Errorf("txscript: %v: empty stack", pop.Op)
		}
		top := e.pop()
		if e.flags.has(ScriptVerifyMinimalData) && len(top) > 1 {
			return fmt.Errorf("txscript: OP_IF operand is not minimally encoded")
		}
		truth := isTrue(top)
		if pop.Op == OP_NOTIF {
			truth = !truth
		}
		if truth {
			cond = condTrue
		} else {
			cond = condFalse
		}
	}
	e.condStack = append(e.condStack, cond)
	return nil
}

func (e *Engine) execElse() error {
	if len(e.condStack) == 0 {
		return fmt.Errorf("txscript: OP_ELSE without matching OP_IF")
	}
	top := len(e.condStack) - 1
	switch e.condStack[top] {
	case condTrue:
		e.condStack[top] = condFalse
	case condFalse:
		e.condStack[top] = condTrue
	}
	return nil
}

func (e *Engine) execEndif() error {
	if len(e.condStack) == 0 {
		return fmt.Errorf("txscript: OP_ENDIF without matching OP_IF")
	}
	e.condStack = e.condStack[:len(e.condStack)-1]
	return nil
}

func isTrue(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			return true
		}
	}
	last := data[len(data)-1]
	return last != 0 && last != 0x80
}

func (e *Engine) push(v []byte) {
	e.stack = append(e.stack, v)
}

func (e *Engine) pop() []byte {
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v
}

func (e *Engine) peek() []byte {
	return e.stack[len(e.stack)-1]
}

func (e *Engine) popInt() (scriptNum, error) {
	if len(e.stack) < 1 {
		return 0, fmt.Errorf("txscript: insufficient stack for numeric operand")
	}
	return makeScriptNum(e.pop(), e.flags.has(ScriptVerifyMinimalData), defaultScriptNumLen)
}

// requireStack returns an error unless the stack holds at least n items.
func (e *Engine) requireStack(op Opcode, n int) error {
	if len(e.stack) < n {
		return fmt.Errorf("txscript: %v: requires %d stack items, has %d", op, n, len(e.stack))
	}
	return nil
}

// subScript returns the serialised form of the active script's
// operations that come after the most recent OP_CODESEPARATOR, for
// CHECKSIG/CHECKMULTISIG to hash. Per spec §9 the cut point is tracked
// against the original parsed opcode stream, not a flattened
// re-serialisation, so a script that pushes data resembling
// OP_CODESEPARATOR's byte value is not mistakenly split on it. Every
// sig is then scrubbed from the result with findAndDelete: the
// reference rule requires a signature never hash over its own bytes,
// since those bytes cannot be known until after the signature itself
// is produced.
func (e *Engine) subScript(sigs ...[]byte) []byte {
	ops := e.scripts[e.scriptIdx][e.lastCodeSep:]
	script := serializeOps(ops)
	for _, sig := range sigs {
		script = findAndDelete(script, sig)
	}
	return script
}

// findAndDelete removes every exact occurrence of needle's canonical
// minimal-push encoding from script. This is the reference
// FindAndDelete rule spec §4.2/§9 calls for: before hashing, the
// interpreter removes any exact byte-wise occurrence of the signature
// from the sub-script, regardless of how the signature happened to be
// pushed onto the stack at the call site.
func findAndDelete(script, needle []byte) []byte {
	push := minimalPush(needle)
	if len(push) == 0 || len(script) < len(push) {
		return script
	}
	out := make([]byte, 0, len(script))
	i := 0
	for i <= len(script)-len(push) {
		if bytes.Equal(script[i:i+len(push)], push) {
			i += len(push)
			continue
		}
		out = append(out, script[i])
		i++
	}
	out = append(out, script[i:]...)
	return out
}

// minimalPush renders data the way the reference client's CScript
// append operator does: the shortest push opcode that fits. FindAndDelete
// matches against this canonical form, not whatever push opcode the
// signature actually arrived on the stack with.
func minimalPush(data []byte) []byte {
	n := len(data)
	switch {
	case n == 0:
		return []byte{byte(OP_0)}
	case n <= 75:
		return append([]byte{byte(n)}, data...)
	case n <= 0xff:
		return append([]byte{byte(OP_PUSHDATA1), byte(n)}, data...)
	case n <= 0xffff:
		return append([]byte{byte(OP_PUSHDATA2), byte(n), byte(n >> 8)}, data...)
	default:
		nn := uint32(n)
		return append([]byte{byte(OP_PUSHDATA4), byte(nn), byte(nn >> 8), byte(nn >> 16), byte(nn >> 24)}, data...)
	}
}

// serializeOps re-encodes a parsed opcode sequence to raw script bytes,
// omitting OP_CODESEPARATOR (the reference rule for what a signature
// actually commits to).
func serializeOps(ops []ParsedOpcode) []byte {
	var out []byte
	for _, op := range ops {
		if op.Op == OP_CODESEPARATOR {
			continue
		}
		if op.Data != nil {
			out = append(out, encodePush(op.Op, op.Data)...)
			continue
		}
		out = append(out, byte(op.Op))
	}
	return out
}

// encodePush re-renders a single parsed push back to wire form, using
// whatever opcode it was originally decoded with (a direct push length
// byte or one of the three OP_PUSHDATA forms).
func encodePush(op Opcode, data []byte) []byte {
	switch {
	case op <= 0x4b:
		return append([]byte{byte(op)}, data...)
	case op == OP_PUSHDATA1:
		return append([]byte{byte(op), byte(len(data))}, data...)
	case op == OP_PUSHDATA2:
		n := len(data)
		return append([]byte{byte(op), byte(n), byte(n >> 8)}, data...)
	case op == OP_PUSHDATA4:
		n := len(data)
		return append([]byte{byte(op), byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}, data...)
	default:
		return []byte{byte(op)}
	}
}
