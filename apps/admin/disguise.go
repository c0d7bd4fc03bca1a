package main

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
)

func (cli *commandLine) addContext(level, name, parentID string) error {
	nc := disguise.NewContext{Level: level, Name: name, ParentID: parentID}
	if err := nc.Validate(cli.validate); err != nil {
		return core.TranslateValidationErrors(err, cli.translator)
	}
	c, err := cli.disguiseSvc.CreateContext(context.Background(), nc)
	if err != nil {
		return err
	}
	fmt.Printf("context %q created: %s\n", c.Name, c.ID)
	return nil
}

func (cli *commandLine) bind(contextID, variant string) error {
	b, err := cli.disguiseSvc.Bind(context.Background(), core.CleanString(contextID, true /* lower */), variant)
	if err != nil {
		return err
	}
	state := "configured"
	if !b.Configured {
		state = "needs setup"
	}
	fmt.Printf("disguise %q bound to context %s (%s)\n", b.Variant, b.ContextID, state)
	return nil
}

func (cli *commandLine) unbind(contextID string) error {
	return cli.disguiseSvc.Unbind(context.Background(), core.CleanString(contextID, true /* lower */))
}
