package config

import "path/filepath"

// DefaultDBTName is used for both the dbt folder and project when unset
const DefaultDBTName = "olist_elt_pipeline"

// Layout locates the pieces of the project on disk
type Layout struct {
	Root       string
	DBTFolder  string
	DBTProject string
}

// LayoutFromEnv reads DBT_FOLDER_NAME and DBT_PROJECT_NAME
func LayoutFromEnv(root string, env Environment) Layout {
	return Layout{
		Root:       root,
		DBTFolder:  env.Get("DBT_FOLDER_NAME", DefaultDBTName),
		DBTProject: env.Get("DBT_PROJECT_NAME", DefaultDBTName),
	}
}

// DBTDir is the dbt project directory
func (l Layout) DBTDir() string {
	return filepath.Join(l.Root, l.DBTFolder)
}

// ProfilesPath is where profiles.yml is written
func (l Layout) ProfilesPath() string {
	return filepath.Join(l.DBTDir(), "profiles.yml")
}

// SeedsDir holds dbt seed files
func (l Layout) SeedsDir() string {
	return filepath.Join(l.DBTDir(), "seeds")
}

// DataDir holds raw CSV extracts
func (l Layout) DataDir() string {
	return filepath.Join(l.Root, "data")
}
