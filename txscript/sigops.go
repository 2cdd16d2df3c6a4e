// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

// CountSigOps returns the number of signature operations a script
// contributes toward a block's sig-op budget (spec §4.4): CHECKSIG and
// CHECKSIGVERIFY count as one each; CHECKMULTISIG and
// CHECKMULTISIGVERIFY count as the N immediately preceding them when N is
// encoded as a small-integer push (OP_0..OP_16, so a preceding OP_0
// counts as zero), or as
// MaxPubKeysPerMultisig otherwise, since the actual key count cannot be
// determined without running the script.
func CountSigOps(script []byte) (int, error) {
	ops, err := parseScript(script)
	if err != nil {
		return 0, err
	}

	var n int
	var prevOp Opcode
	for i, op := range ops {
		switch op.Op {
		case OP_CHECKSIG, OP_CHECKSIGVERIFY:
			n++
		case OP_CHECKMULTISIG, OP_CHECKMULTISIGVERIFY:
			if i > 0 && isSmallInt(prevOp) {
				n += asSmallInt(prevOp)
			} else {
				n += MaxPubKeysPerMultisig
			}
		}
		prevOp = op.Op
	}
	return n, nil
}
