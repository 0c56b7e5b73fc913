package template

import "github.com/Interactions-AI/odin/internal/domain"

// ApplyTask returns a copy of def with args, image, command, and mount
// paths expanded against v (spec.md §4.1: "Expansion operates on strings
// inside args, image, mount path, and command").
func ApplyTask(v Variables, def domain.TaskDefinition) domain.TaskDefinition {
	out := def
	out.Image = Expand(v, def.Image)
	out.Command = ExpandAll(v, def.Command)
	out.Args = ExpandAll(v, def.Args)
	if def.Mounts != nil {
		out.Mounts = make([]domain.Mount, len(def.Mounts))
		for i, m := range def.Mounts {
			out.Mounts[i] = domain.Mount{
				Claim: m.Claim,
				Name:  m.Name,
				Path:  Expand(v, m.Path),
			}
		}
	}
	return out
}
