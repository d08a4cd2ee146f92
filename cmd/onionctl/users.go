package main

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	var userID string

	profileCmd := &cobra.Command{Use: "profile", Short: "Profile operations"}
	profileGet := &cobra.Command{
		Use:   "get",
		Short: "Show a user's aggregated profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileGet(apiFlag, userID, os.Stdout)
		},
	}
	profileGet.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	profileCmd.AddCommand(profileGet)

	var includeDrafts bool
	diariesCmd := &cobra.Command{Use: "diaries", Short: "Diary operations"}
	diariesList := &cobra.Command{
		Use:   "list",
		Short: "List a user's entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiaryList(apiFlag, userID, includeDrafts, os.Stdout)
		},
	}
	diariesList.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	diariesList.Flags().BoolVar(&includeDrafts, "drafts", false, "Include drafts")
	diariesCmd.AddCommand(diariesList)

	lifeMapCmd := &cobra.Command{Use: "life-map", Short: "Life map operations"}
	lifeMapLatest := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent life map",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLifeMapLatest(apiFlag, userID, os.Stdout)
		},
	}
	lifeMapLatest.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	lifeMapCmd.AddCommand(lifeMapLatest)

	rootCmd.AddCommand(profileCmd, diariesCmd, lifeMapCmd)
}
