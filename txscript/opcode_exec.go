// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"bytes"
	"fmt"
)

// execOp dispatches a single non-push, non-flow-control opcode.
func (e *Engine) execOp(op Opcode) error {
	switch op {
	case OP_NOP:
		return nil

	case OP_NOP1, OP_NOP4, OP_NOP5, OP_NOP6, OP_NOP7, OP_NOP8, OP_NOP9, OP_NOP10:
		return nil

	case OP_CHECKLOCKTIMEVERIFY:
		return e.execCheckLockTimeVerify()
	case OP_CHECKSEQUENCEVERIFY:
		return e.execCheckSequenceVerify()

	case OP_VERIFY:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		if !isTrue(e.pop()) {
			return fmt.Errorf("txscript: OP_VERIFY failed")
		}
		return nil

	case OP_RETURN:
		return fmt.Errorf("txscript: OP_RETURN")

	case OP_TOALTSTACK:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		e.altStack = append(e.altStack, e.pop())
		return nil
	case OP_FROMALTSTACK:
		if len(e.altStack) < 1 {
			return fmt.Errorf("txscript: OP_FROMALTSTACK: alt stack empty")
		}
		v := e.altStack[len(e.altStack)-1]
		e.altStack = e.altStack[:len(e.altStack)-1]
		e.push(v)
		return nil

	case OP_2DROP:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		e.stack = e.stack[:len(e.stack)-2]
		return nil
	case OP_2DUP:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		n := len(e.stack)
		e.push(dup(e.stack[n-2]))
		e.push(dup(e.stack[n-1]))
		return nil
	case OP_3DUP:
		if err := e.requireStack(op, 3); err != nil {
			return err
		}
		n := len(e.stack)
		e.push(dup(e.stack[n-3]))
		e.push(dup(e.stack[n-2]))
		e.push(dup(e.stack[n-1]))
		return nil
	case OP_2OVER:
		if err := e.requireStack(op, 4); err != nil {
			return err
		}
		n := len(e.stack)
		e.push(dup(e.stack[n-4]))
		e.push(dup(e.stack[n-3]))
		return nil
	case OP_2ROT:
		if err := e.requireStack(op, 6); err != nil {
			return err
		}
		n := len(e.stack)
		a, b := e.stack[n-6], e.stack[n-5]
		e.stack = append(e.stack[:n-6], e.stack[n-4:]...)
		e.push(a)
		e.push(b)
		return nil
	case OP_2SWAP:
		if err := e.requireStack(op, 4); err != nil {
			return err
		}
		n := len(e.stack)
		e.stack[n-4], e.stack[n-2] = e.stack[n-2], e.stack[n-4]
		e.stack[n-3], e.stack[n-1] = e.stack[n-1], e.stack[n-3]
		return nil
	case OP_IFDUP:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		if isTrue(e.peek()) {
			e.push(dup(e.peek()))
		}
		return nil
	case OP_DEPTH:
		e.push(scriptNum(len(e.stack)).Bytes())
		return nil
	case OP_DROP:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		e.pop()
		return nil
	case OP_DUP:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		e.push(dup(e.peek()))
		return nil
	case OP_NIP:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		n := len(e.stack)
		e.stack = append(e.stack[:n-2], e.stack[n-1])
		return nil
	case OP_OVER:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		e.push(dup(e.stack[len(e.stack)-2]))
		return nil
	case OP_PICK, OP_ROLL:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		idx, err := e.popInt()
		if err != nil {
			return err
		}
		n := len(e.stack)
		pos := n - 1 - int(idx)
		if idx < 0 || pos < 0 {
			return fmt.Errorf("txscript: %v: index out of range", op)
		}
		v := e.stack[pos]
		if op == OP_ROLL {
			e.stack = append(e.stack[:pos], e.stack[pos+1:]...)
		} else {
			v = dup(v)
		}
		e.push(v)
		return nil
	case OP_ROT:
		if err := e.requireStack(op, 3); err != nil {
			return err
		}
		n := len(e.stack)
		e.stack[n-3], e.stack[n-2], e.stack[n-1] = e.stack[n-2], e.stack[n-1], e.stack[n-3]
		return nil
	case OP_SWAP:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		n := len(e.stack)
		e.stack[n-1], e.stack[n-2] = e.stack[n-2], e.stack[n-1]
		return nil
	case OP_TUCK:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		n := len(e.stack)
		v := dup(e.stack[n-1])
		e.stack = append(e.stack[:n-2], v, e.stack[n-2], e.stack[n-1])
		return nil

	case OP_SIZE:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		e.push(scriptNum(len(e.peek())).Bytes())
		return nil

	case OP_EQUAL, OP_EQUALVERIFY:
		if err := e.requireStack(op, 2); err != nil {
			return err
		}
		b, a := e.pop(), e.pop()
		eq := bytes.Equal(a, b)
		if op == OP_EQUALVERIFY {
			if !eq {
				return fmt.Errorf("txscript: OP_EQUALVERIFY failed")
			}
			return nil
		}
		e.push(boolBytes(eq))
		return nil

	case OP_1ADD, OP_1SUB, OP_NEGATE, OP_ABS, OP_NOT, OP_0NOTEQUAL:
		return e.execUnaryArith(op)

	case OP_ADD, OP_SUB, OP_BOOLAND, OP_BOOLOR, OP_NUMEQUAL, OP_NUMEQUALVERIFY,
		OP_NUMNOTEQUAL, OP_LESSTHAN, OP_GREATERTHAN, OP_LESSTHANOREQUAL,
		OP_GREATERTHANOREQUAL, OP_MIN, OP_MAX:
		return e.execBinaryArith(op)

	case OP_WITHIN:
		return e.execWithin()

	case OP_RIPEMD160:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		h := e.crypto.RIPEMD160(e.pop())
		e.push(h[:])
		return nil
	case OP_SHA1:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		h := e.crypto.SHA1(e.pop())
		e.push(h[:])
		return nil
	case OP_SHA256:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		h := e.crypto.SHA256(e.pop())
		e.push(h[:])
		return nil
	case OP_HASH160:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		h := e.crypto.Hash160(e.pop())
		e.push(h[:])
		return nil
	case OP_HASH256:
		if err := e.requireStack(op, 1); err != nil {
			return err
		}
		h := e.crypto.Hash256(e.pop())
		e.push(h[:])
		return nil

	case OP_CODESEPARATOR:
		e.lastCodeSep = e.opIdx + 1
		return nil

	case OP_CHECKSIG, OP_CHECKSIGVERIFY:
		return e.execCheckSig(op)

	case OP_CHECKMULTISIG, OP_CHECKMULTISIGVERIFY:
		return e.execCheckMultisig(op)

	case OP_RESERVED:
		return fmt.Errorf("txscript: OP_RESERVED executed")

	default:
		return fmt.Errorf("txscript: unimplemented opcode 0x%02x", byte(op))
	}
}

func dup(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func boolBytes(v bool) []byte {
	if v {
		return []byte{1}
	}
	return nil
}

func (e *Engine) execUnaryArith(op Opcode) error {
	if err := e.requireStack(op, 1); err != nil {
		return err
	}
	n, err := e.popInt()
	if err != nil {
		return err
	}
	var result scriptNum
	switch op {
	case OP_1ADD:
		result = n + 1
	case OP_1SUB:
		result = n - 1
	case OP_NEGATE:
		result = -n
	case OP_ABS:
		if n < 0 {
			result = -n
		} else {
			result = n
		}
	case OP_NOT:
		result = scriptNum(boolToInt(n == 0))
	case OP_0NOTEQUAL:
		result = scriptNum(boolToInt(n != 0))
	}
	e.push(result.Bytes())
	return nil
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func (e *Engine) execBinaryArith(op Opcode) error {
	if err := e.requireStack(op, 2); err != nil {
		return err
	}
	b, err := e.popInt()
	if err != nil {
		return err
	}
	a, err := e.popInt()
	if err != nil {
		return err
	}

	var result scriptNum
	switch op {
	case OP_ADD:
		result = a + b
	case OP_SUB:
		result = a - b
	case OP_BOOLAND:
		result = scriptNum(boolToInt(a != 0 && b != 0))
	case OP_BOOLOR:
		result = scriptNum(boolToInt(a != 0 || b != 0))
	case OP_NUMEQUAL, OP_NUMEQUALVERIFY:
		result = scriptNum(boolToInt(a == b))
	case OP_NUMNOTEQUAL:
		result = scriptNum(boolToInt(a != b))
	case OP_LESSTHAN:
		result = scriptNum(boolToInt(a < b))
	case OP_GREATERTHAN:
		result = scriptNum(boolToInt(a > b))
	case OP_LESSTHANOREQUAL:
		result = scriptNum(boolToInt(a <= b))
	case OP_GREATERTHANOREQUAL:
		result = scriptNum(boolToInt(a >= b))
	case OP_MIN:
		if a < b {
			result = a
		} else {
			result = b
		}
	case OP_MAX:
		if a > b {
			result = a
		} else {
			result = b
		}
	}

	if op == OP_NUMEQUALVERIFY {
		if result == 0 {
			return fmt.Errorf("txscript: OP_NUMEQUALVERIFY failed")
		}
		return nil
	}
	e.push(result.Bytes())
	return nil
}

func (e *Engine) execWithin() error {
	if err := e.requireStack(OP_WITHIN, 3); err != nil {
		return err
	}
	max, err := e.popInt()
	if err != nil {
		return err
	}
	min, err := e.popInt()
	if err != nil {
		return err
	}
	x, err := e.popInt()
	if err != nil {
		return err
	}
	e.push(boolBytes(x >= min && x < max))
	return nil
}

func (e *Engine) execCheckLockTimeVerify() error {
	if !e.flags.has(ScriptVerifyCheckLockTimeVerify) {
		return nil // behaves as OP_NOP1's successor, reserved no-op
	}
	if err := e.requireStack(OP_CHECKLOCKTIMEVERIFY, 1); err != nil {
		return err
	}
	n, err := makeScriptNum(e.peek(), e.flags.has(ScriptVerifyMinimalData), 5)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("txscript: OP_CHECKLOCKTIMEVERIFY: negative locktime")
	}
	if !e.checker.CheckLockTime(int64(n)) {
		return fmt.Errorf("txscript: OP_CHECKLOCKTIMEVERIFY: locktime requirement not satisfied")
	}
	return nil
}

func (e *Engine) execCheckSequenceVerify() error {
	if !e.flags.has(ScriptVerifyCheckSequenceVerify) {
		return nil
	}
	if err := e.requireStack(OP_CHECKSEQUENCEVERIFY, 1); err != nil {
		return err
	}
	n, err := makeScriptNum(e.peek(), e.flags.has(ScriptVerifyMinimalData), 5)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("txscript: OP_CHECKSEQUENCEVERIFY: negative sequence")
	}
	if !e.checker.CheckSequence(int64(n)) {
		return fmt.Errorf("txscript: OP_CHECKSEQUENCEVERIFY: sequence requirement not satisfied")
	}
	return nil
}

func (e *Engine) execCheckSig(op Opcode) error {
	if err := e.requireStack(op, 2); err != nil {
		return err
	}
	pubKey := e.pop()
	sig := e.pop()

	valid := len(sig) > 0 && e.checker.CheckSig(sig, pubKey, e.subScript(sig))
	if err := e.enforceNullFail(valid, sig); err != nil {
		return err
	}

	if op == OP_CHECKSIGVERIFY {
		if !valid {
			return fmt.Errorf("txscript: OP_CHECKSIGVERIFY failed")
		}
		return nil
	}
	e.push(boolBytes(valid))
	return nil
}

// execCheckMultisig implements m-of-n signature checking, faithfully
// reproducing the reference interpreter's off-by-one stack-depth bug: it
// pops one extra item (the "dummy" element) below the signature list
// that has no defined purpose, because an early implementation mistakenly
// used the same pop loop bound for both the pubkey and signature counts.
func (e *Engine) execCheckMultisig(op Opcode) error {
	if err := e.requireStack(op, 1); err != nil {
		return err
	}
	nKeysNum, err := e.popInt()
	if err != nil {
		return err
	}
	nKeys := int(nKeysNum)
	if nKeys < 0 || nKeys > MaxPubKeysPerMultisig {
		return fmt.Errorf("txscript: %v: key count %d out of range", op, nKeys)
	}
	if err := e.requireStack(op, nKeys); err != nil {
		return err
	}
	pubKeys := make([][]byte, nKeys)
	for i := nKeys - 1; i >= 0; i-- {
		pubKeys[i] = e.pop()
	}

	if err := e.requireStack(op, 1); err != nil {
		return err
	}
	nSigsNum, err := e.popInt()
	if err != nil {
		return err
	}
	nSigs := int(nSigsNum)
	if nSigs < 0 || nSigs > nKeys {
		return fmt.Errorf("txscript: %v: signature count %d out of range", op, nSigs)
	}
	if err := e.requireStack(op, nSigs); err != nil {
		return err
	}
	sigs := make([][]byte, nSigs)
	for i := nSigs - 1; i >= 0; i-- {
		sigs[i] = e.pop()
	}

	// The extra, unused element every CHECKMULTISIG invocation consumes.
	if err := e.requireStack(op, 1); err != nil {
		return err
	}
	dummy := e.pop()
	if e.flags.has(ScriptVerifyNullFail) && len(dummy) != 0 {
		return fmt.Errorf("txscript: %v: dummy element must be empty", op)
	}

	// Every signature offered, not only the ones that end up matching a
	// key, is scrubbed from the sub-script: the reference rule strips
	// them before any signature is checked against it.
	subScript := e.subScript(sigs...)
	valid := true
	sigIdx, keyIdx := 0, 0
	for sigIdx < nSigs {
		if keyIdx >= nKeys {
			valid = false
			break
		}
		if len(sigs[sigIdx]) > 0 && e.checker.CheckSig(sigs[sigIdx], pubKeys[keyIdx], subScript) {
			sigIdx++
		}
		keyIdx++
	}

	if !valid {
		for _, s := range sigs {
			if err := e.enforceNullFail(false, s); err != nil {
				return err
			}
		}
	}

	if op == OP_CHECKMULTISIGVERIFY {
		if !valid {
			return fmt.Errorf("txscript: OP_CHECKMULTISIGVERIFY failed")
		}
		return nil
	}
	e.push(boolBytes(valid))
	return nil
}

// enforceNullFail applies ScriptVerifyNullFail: a failed signature check
// must have been given an empty signature, closing off a malleability
// vector where a verifier that short-circuits on the first valid
// signature can be fed garbage for the rest.
func (e *Engine) enforceNullFail(valid bool, sig []byte) error {
	if !valid && e.flags.has(ScriptVerifyNullFail) && len(sig) != 0 {
		return fmt.Errorf("txscript: signature check failed with a non-empty signature")
	}
	return nil
}
