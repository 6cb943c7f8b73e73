// Package bytecode decodes JVM method bodies for the type-flow simulator.
//
// The package does not parse class files. Callers hand it a code array, a
// ConstantPool that resolves indices to already-built Constants, the method's
// exception table as a CatchList, and optionally a LocalVariableList.
//
// # Instructions
//
// Code.Decode turns the bytes at an offset into an Instruction. Decoding
// folds the typed opcode families of the JVM onto a small canonical set so
// that consumers only switch on one opcode per operation:
//
//   - xload, xload_n, xstore, xstore_n become OpIload / OpIstore with a
//     Type and a Local index.
//   - iconst_n, bipush, sipush, fconst_n and ldc/ldc_w become OpLdc with a
//     Constant; lconst_n, dconst_n and ldc2_w become OpLdc2W.
//   - Arithmetic, shift and bitwise families become their int opcode with
//     the operand Type; xaload and xastore become OpIaload and OpIastore
//     with the element Type; typed returns become OpIreturn.
//   - goto_w and jsr_w become OpGoto and OpJsr; both switches become
//     OpLookupswitch with a SwitchTable; wide is expanded in place.
//
// Instruction.Raw keeps the opcode as it appeared in the code array.
//
// # Array initializers
//
// With Code.DetectArrayInit set, a newarray whose length comes from a
// literal and which is followed by a complete run of
// "dup; index; value; xastore" stores of literals decodes as a single
// KindNewArray instruction carrying InitValues.
//
// # Exception tables
//
// CatchList.ListFor answers which handlers are live at a pc. The first
// handler for a type wins and a catch-all handler shadows everything
// declared after it.
package bytecode
