package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/masomo-disguise/core"
	"github.com/trezcool/masomo-disguise/core/disguise"
	"github.com/trezcool/masomo-disguise/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf        *core.Config
	db          *sqlx.DB
	usrSvc      *user.Service
	disguiseSvc *disguise.Service
	validate    *validator.Validate
	translator  ut.Translator
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] - add or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  addcontext -level course|module -name NAME [-parent ID] - register a context")
	fmt.Println("  bind -context ID -variant VARIANT - bind a disguise to a context")
	fmt.Println("  unbind -context ID - remove the disguise of a context")
}

// promptPassword reads a password without echo. errHelp when none was typed.
func promptPassword(usage func()) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's real name.")
	addUserIsAdmin := addUserCmd.Bool("admin", false, "Whether the user is an admin or not.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	addContextCmd := flag.NewFlagSet("addcontext", flag.ContinueOnError)
	addContextLevel := addContextCmd.String("level", disguise.LevelCourse, "The context level: course or module.")
	addContextName := addContextCmd.String("name", "", "The context name.")
	addContextParent := addContextCmd.String("parent", "", "The ID of the parent context.")

	bindCmd := flag.NewFlagSet("bind", flag.ContinueOnError)
	bindContext := bindCmd.String("context", "", "The ID of the context.")
	bindVariant := bindCmd.String("variant", "", "The disguise variant: basic or predefined.")

	unbindCmd := flag.NewFlagSet("unbind", flag.ContinueOnError)
	unbindContext := unbindCmd.String("context", "", "The ID of the context.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserIsAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "addcontext":
		if err := addContextCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addContextName == "" {
			addContextCmd.Usage()
			return errHelp
		}
		return cli.addContext(*addContextLevel, *addContextName, *addContextParent)

	case "bind":
		if err := bindCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *bindContext == "" || *bindVariant == "" {
			bindCmd.Usage()
			return errHelp
		}
		return cli.bind(*bindContext, *bindVariant)

	case "unbind":
		if err := unbindCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *unbindContext == "" {
			unbindCmd.Usage()
			return errHelp
		}
		return cli.unbind(*unbindContext)

	default:
		cli.printUsage()
		return errHelp
	}
}
