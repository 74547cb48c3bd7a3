// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/blinklabs-io/warden/api"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/internal/config"
	"github.com/blinklabs-io/warden/mute"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var adminFlags = struct {
	apiURL string
}{}

// apiClient builds a client for the --api URL, falling back to the local
// API port from the loaded config
func apiClient(cmd *cobra.Command) *api.Client {
	baseURL := adminFlags.apiURL
	if baseURL == "" {
		port := uint(8080)
		if cfg := config.FromContext(cmd.Context()); cfg != nil && cfg.ApiPort > 0 {
			port = cfg.ApiPort
		}
		baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	return api.NewClient(baseURL, nil)
}

func snowflakeFlag(cmd *cobra.Command, name string) (types.Snowflake, error) {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		return 0, err
	}
	if val == "" {
		return 0, fmt.Errorf("--%s is required", name)
	}
	return types.ParseSnowflake(val)
}

func optionalSnowflakeFlag(cmd *cobra.Command, name string) (*types.Snowflake, error) {
	val, err := cmd.Flags().GetString(name)
	if err != nil || val == "" {
		return nil, err
	}
	id, err := types.ParseSnowflake(val)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func formatMute(m *models.Mute, now time.Time) string {
	status := "ended"
	if m.Active {
		status = "active, ends " + humanize.RelTime(m.End, now, "ago", "from now")
	}
	ret := fmt.Sprintf(
		"#%d user %s: %s, started %s (%s)",
		m.ID,
		m.UserID,
		mute.HumanDuration(m.Duration()),
		humanize.RelTime(m.Start, now, "ago", "from now"),
		status,
	)
	if m.Reason != "" {
		ret += ", reason: " + m.Reason
	}
	return ret
}

func formatWarn(w *models.Warn, now time.Time) string {
	ret := fmt.Sprintf(
		"#%d user %s by %s, %s",
		w.ID,
		w.UserID,
		w.ModeratorID,
		humanize.RelTime(w.Timestamp, now, "ago", "from now"),
	)
	if w.Reason != "" {
		ret += ", reason: " + w.Reason
	}
	return ret
}

func printMutes(out io.Writer, mutes []models.Mute, now time.Time) {
	if len(mutes) == 0 {
		fmt.Fprintln(out, "no mutes")
		return
	}
	for i := range mutes {
		fmt.Fprintln(out, formatMute(&mutes[i], now))
	}
}

func printRole(out io.Writer, kind string, resp *api.RoleResponse) {
	if resp.RoleID == nil {
		fmt.Fprintf(out, "guild %s has no %s configured\n", resp.GuildID, kind)
		return
	}
	fmt.Fprintf(out, "guild %s %s: %s\n", resp.GuildID, kind, *resp.RoleID)
}

func addMemberFlags(cmd *cobra.Command) {
	cmd.Flags().String("guild", "", "guild id")
	cmd.Flags().String("user", "", "user id")
}

func muteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mute",
		Short: "Mute a member for a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := snowflakeFlag(cmd, "guild")
			if err != nil {
				return err
			}
			userID, err := snowflakeFlag(cmd, "user")
			if err != nil {
				return err
			}
			moderatorID, err := optionalSnowflakeFlag(cmd, "moderator")
			if err != nil {
				return err
			}
			duration, _ := cmd.Flags().GetString("duration")
			reason, _ := cmd.Flags().GetString("reason")
			req := api.MuteRequest{
				UserID:   userID,
				Duration: duration,
				Reason:   reason,
			}
			if moderatorID != nil {
				req.ModeratorID = *moderatorID
			}
			resp, err := apiClient(cmd).Mute(cmd.Context(), guildID, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(
				out,
				"muted %s for %s\n",
				userID,
				mute.HumanDuration(resp.Mute.Duration()),
			)
			if resp.Warning != "" {
				fmt.Fprintf(out, "warning: %s\n", resp.Warning)
			}
			return nil
		},
	}
	addMemberFlags(cmd)
	cmd.Flags().String("duration", "", "mute duration, e.g. 15m, 1d12h, 2w")
	cmd.Flags().String("reason", "", "reason shown to the member")
	cmd.Flags().String("moderator", "", "moderator user id")
	return cmd
}

func unmuteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmute",
		Short: "End a member's active mute",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := snowflakeFlag(cmd, "guild")
			if err != nil {
				return err
			}
			userID, err := snowflakeFlag(cmd, "user")
			if err != nil {
				return err
			}
			resp, err := apiClient(cmd).Unmute(cmd.Context(), guildID, userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "unmuted %s\n", userID)
			if resp.Warning != "" {
				fmt.Fprintf(out, "warning: %s\n", resp.Warning)
			}
			return nil
		},
	}
	addMemberFlags(cmd)
	return cmd
}

func mutesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mutes",
		Short: "List mutes in a guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := snowflakeFlag(cmd, "guild")
			if err != nil {
				return err
			}
			userID, err := optionalSnowflakeFlag(cmd, "user")
			if err != nil {
				return err
			}
			active, _ := cmd.Flags().GetBool("active")
			limit, _ := cmd.Flags().GetInt("limit")
			mutes, err := apiClient(cmd).ListMutes(
				cmd.Context(),
				guildID,
				api.ListMutesOptions{
					UserID:     userID,
					ActiveOnly: active,
					Limit:      limit,
					Descending: true,
				},
			)
			if err != nil {
				return err
			}
			printMutes(cmd.OutOrStdout(), mutes, time.Now())
			return nil
		},
	}
	addMemberFlags(cmd)
	cmd.Flags().Bool("active", false, "only show active mutes")
	cmd.Flags().Int("limit", mute.HistoryLimit, "maximum number of mutes to show")
	return cmd
}

func deleteMuteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-mute <id>",
		Short: "Delete a mute record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid mute id %q: %w", args[0], err)
			}
			m, err := apiClient(cmd).DeleteMute(cmd.Context(), uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted mute #%d for %s\n", m.ID, m.UserID)
			return nil
		},
	}
	return cmd
}

func warnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warn",
		Short: "Warn a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := snowflakeFlag(cmd, "guild")
			if err != nil {
				return err
			}
			userID, err := snowflakeFlag(cmd, "user")
			if err != nil {
				return err
			}
			moderatorID, err := optionalSnowflakeFlag(cmd, "moderator")
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			req := api.WarnRequest{UserID: userID, Reason: reason}
			if moderatorID != nil {
				req.ModeratorID = *moderatorID
			}
			w, err := apiClient(cmd).Warn(cmd.Context(), guildID, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "warned %s (#%d)\n", w.UserID, w.ID)
			return nil
		},
	}
	addMemberFlags(cmd)
	cmd.Flags().String("reason", "", "reason shown to the member")
	cmd.Flags().String("moderator", "", "moderator user id")
	return cmd
}

func warnsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warns",
		Short: "List a member's latest warns",
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := snowflakeFlag(cmd, "guild")
			if err != nil {
				return err
			}
			userID, err := snowflakeFlag(cmd, "user")
			if err != nil {
				return err
			}
			warns, err := apiClient(cmd).Warns(cmd.Context(), guildID, userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(warns) == 0 {
				fmt.Fprintln(out, "no warns")
				return nil
			}
			now := time.Now()
			for i := range warns {
				fmt.Fprintln(out, formatWarn(&warns[i], now))
			}
			return nil
		},
	}
	addMemberFlags(cmd)
	return cmd
}

type roleAccessor struct {
	get func(*api.Client, *cobra.Command, types.Snowflake) (*api.RoleResponse, error)
	set func(*api.Client, *cobra.Command, types.Snowflake, *types.Snowflake) error
}

func roleCommand(use, kind string, access roleAccessor) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: "Show, set or clear the guild " + kind,
		RunE: func(cmd *cobra.Command, args []string) error {
			guildID, err := snowflakeFlag(cmd, "guild")
			if err != nil {
				return err
			}
			roleID, err := optionalSnowflakeFlag(cmd, "set")
			if err != nil {
				return err
			}
			clearRole, _ := cmd.Flags().GetBool("clear")
			if clearRole && roleID != nil {
				return errors.New("--set and --clear are mutually exclusive")
			}
			client := apiClient(cmd)
			if clearRole || roleID != nil {
				if err := access.set(client, cmd, guildID, roleID); err != nil {
					return err
				}
			}
			resp, err := access.get(client, cmd, guildID)
			if err != nil {
				return err
			}
			printRole(cmd.OutOrStdout(), kind, resp)
			return nil
		},
	}
	cmd.Flags().String("guild", "", "guild id")
	cmd.Flags().String("set", "", "role id to configure")
	cmd.Flags().Bool("clear", false, "remove the configured role")
	return cmd
}

func adminCommands() []*cobra.Command {
	cmds := []*cobra.Command{
		muteCommand(),
		unmuteCommand(),
		mutesCommand(),
		deleteMuteCommand(),
		warnCommand(),
		warnsCommand(),
		roleCommand(
			"mute-role",
			"mute role",
			roleAccessor{
				get: func(c *api.Client, cmd *cobra.Command, g types.Snowflake) (*api.RoleResponse, error) {
					return c.MuteRole(cmd.Context(), g)
				},
				set: func(c *api.Client, cmd *cobra.Command, g types.Snowflake, r *types.Snowflake) error {
					return c.SetMuteRole(cmd.Context(), g, r)
				},
			},
		),
		roleCommand(
			"mod-role",
			"mod role",
			roleAccessor{
				get: func(c *api.Client, cmd *cobra.Command, g types.Snowflake) (*api.RoleResponse, error) {
					return c.ModRole(cmd.Context(), g)
				},
				set: func(c *api.Client, cmd *cobra.Command, g types.Snowflake, r *types.Snowflake) error {
					return c.SetModRole(cmd.Context(), g, r)
				},
			},
		),
	}
	for _, cmd := range cmds {
		cmd.Flags().StringVar(
			&adminFlags.apiURL,
			"api",
			"",
			"warden API base URL (default http://127.0.0.1:<apiPort>)",
		)
	}
	return cmds
}
