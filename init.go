package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wansing/pressroom/core"
	"golang.org/x/crypto/ssh/terminal"
)

type initFlags struct {
	insert    bool
	join      bool
	grant     string
	revoke    string
	groupname string
	username  string
}

func newInitCmd(flags *globalFlags) *cobra.Command {
	var f = &initFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Manage users, groups and authority grants",
		Example: `  pressroom init --insert --user alice@example.com
  pressroom init --insert --group reviewers
  pressroom init --join --group reviewers --user alice@example.com
  pressroom init --grant reviewer --group reviewers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.URL == "mem:" {
				return errors.New("init on an in-memory database has no effect")
			}
			cfg.Bus.Redis = "" // init publishes no events

			s, err := assemble(cfg, logger)
			if err != nil {
				return err
			}
			defer s.close()

			return f.run(s.db)
		},
	}
	cmd.Flags().BoolVar(&f.insert, "insert", false, "creates the given group or user")
	cmd.Flags().BoolVar(&f.join, "join", false, "joins the given user to the given group")
	cmd.Flags().StringVar(&f.grant, "grant", "", "grants the `authority` (reviewer, staff, admin) to the given group")
	cmd.Flags().StringVar(&f.revoke, "revoke", "", "revokes the `authority` from the given group")
	cmd.Flags().StringVar(&f.groupname, "group", "", "specifies a group `name`")
	cmd.Flags().StringVar(&f.username, "user", "", "specifies a user `name`")
	return cmd
}

func (f *initFlags) run(db *core.CoreDB) error {
	switch {
	case f.insert:
		var done = false
		if f.groupname != "" {
			if err := db.InsertGroup(f.groupname); err != nil {
				return fmt.Errorf(`creating group "%s": %w`, f.groupname, err)
			}
			done = true
		}
		if f.username != "" {
			if err := insertUser(db, f.username); err != nil {
				return err
			}
			done = true
		}
		if !done {
			return errUsage
		}
		return nil
	case f.join:
		if f.groupname == "" || f.username == "" {
			return errUsage
		}
		return join(db, f.groupname, f.username)
	case f.grant != "":
		return grant(db, f.groupname, f.grant, db.Grant)
	case f.revoke != "":
		return grant(db, f.groupname, f.revoke, db.Revoke)
	}
	return errUsage
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	pass, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	return pass, err
}

func insertUser(db *core.CoreDB, name string) error {

	pass1, err := readPassword(fmt.Sprintf("password for user %s: ", name))
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	pass2, err := readPassword("repeat password: ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if !bytes.Equal(pass1, pass2) {
		return errors.New("passwords don't match")
	}

	user, err := db.InsertUser(name)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", name, err)
	}

	if err := db.SetPassword(user, string(pass1)); err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	return nil
}

func join(db *core.CoreDB, groupname string, username string) error {

	group, err := db.GetGroupByName(groupname)
	if err != nil {
		return fmt.Errorf("getting group %s: %w", groupname, err)
	}

	user, err := db.GetUserByName(username)
	if err != nil {
		return fmt.Errorf("getting user %s: %w", username, err)
	}

	if err := db.Join(group, user); err != nil {
		return fmt.Errorf("joining: %w", err)
	}
	return nil
}

func grant(db *core.CoreDB, groupname, authority string, apply func(core.DBGroup, core.Authority) error) error {

	if groupname == "" {
		return errUsage
	}

	a, err := core.ParseAuthority(authority)
	if err != nil {
		return err
	}

	group, err := db.GetGroupByName(groupname)
	if err != nil {
		return fmt.Errorf("getting group %s: %w", groupname, err)
	}

	return apply(group, a)
}
