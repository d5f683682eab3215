/*
Package livepatch instruments the process it runs in.

It finds functions inside already-loaded modules by signature, hooks them
in place, and resolves the interfaces modules export through their factory.

How a hook works:

ORIGINAL FUNCTION (target)
DETOUR FUNCTION (replacement)
TRAMPOLINE

***Target***
  - First bytes overwritten with an absolute jump to the detour

***Detour***
  - Runs instead of the target, looks up its trampoline with
    HookManager.GetOriginal and calls it when it wants the original behaviour

***Trampoline***
  - Holds the instructions copied from the target
  - Jumps back into the target right after the overwritten bytes

Typical bootstrap:

	s := livepatch.New()
	if err := s.Initialize([]string{"client", "engine2"}); err != nil {
		return err
	}
	s.InstallAll([]livepatch.HookSpec{{
		Name:      "create_move",
		Module:    "client",
		Signature: "48 8B C4 4C 89 48 20 55",
		Detour:    createMoveDetour,
	}})
	engine, err := s.Interface("engine2", "Source2EngineToClient001")
*/
package livepatch
