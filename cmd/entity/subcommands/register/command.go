package register

import (
	reg_entity "github.com/openbraininstitute/entitykit/cmd/entity/subcommands/register/entity"
	reg_types "github.com/openbraininstitute/entitykit/cmd/entity/subcommands/register/types"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	entity, err := reg_entity.New()
	if err != nil {
		return nil, err
	}
	types, err := reg_types.New()
	if err != nil {
		return nil, err
	}

	return flarc.NewCommandGroup(
		"Register entities to Nexus.",
		struct{}{},
		flarc.WithSubcommand("entity", entity),
		flarc.WithSubcommand("types", types),
	)
}
