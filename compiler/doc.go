/*
Package compiler wires the pipeline stages together.

	Source Text (.go) ->
		front.Parse ->
	Checked AST (ast) ->
		lower.Module ->
	Intermediate Language (ir) <- ir.Parse <- IL Text (.il)
		verify.Module ->
	Verified Module ->
		vm.Machine.Run -> Result
	or
		back.Compile -> Assembly (arm64) or LLVM IR (x86_64, llvm)

Independent files compile in parallel with CompileFiles.
*/
package compiler
