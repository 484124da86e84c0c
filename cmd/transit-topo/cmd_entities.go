package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"transit-topo/internal/bootstrap"
	"transit-topo/internal/claimexpr"
	"transit-topo/internal/known"
	"transit-topo/internal/topo"
	"transit-topo/internal/wikibase"
)

const claimHelp = `Claim of the form P42=value. Can be repeated.
Known entities can be used as @name, e.g. "@instance_of=@producer".`

func prepopulateCmd(a *app) *cobra.Command {
	var (
		defaultProducer bool
		output          string
	)
	cmd := &cobra.Command{
		Use:   "prepopulate",
		Short: "Create the schema properties and items used by the importer",
		Long: `Create the schema properties and items used by the importer, reusing
the ones that already exist. Prints the id of the topo id property.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			api, err := a.apiClient(ctx)
			if err != nil {
				return err
			}
			p := bootstrap.New(api, a.logger)
			e, err := p.EnsureSchema(ctx)
			if err != nil {
				return fmt.Errorf("prepopulate: %w", err)
			}
			if defaultProducer {
				id, err := p.EnsureProducer(ctx, e, bootstrap.DefaultProducer)
				if err != nil {
					return fmt.Errorf("default producer: %w", err)
				}
				a.logger.Info("default producer ready", "label", bootstrap.DefaultProducer, "id", id)
			}
			if output != "" {
				if err := writeEntities(output, e); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.Properties.TopoIDID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&defaultProducer, "default-producer", false, "Also create the producer \""+bootstrap.DefaultProducer+"\"")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the known entities to this YAML file")
	return cmd
}

func writeEntities(path string, e *known.Entities) error {
	b, err := yaml.Marshal(e)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func schemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the known entities discovered in the store as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.entities(cmd.Context(), a.sparqlClient())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(e); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func producerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "producer",
		Short: "Manage producers",
	}

	var claims []string
	create := &cobra.Command{
		Use:   "create <label>",
		Short: "Create a producer, unless one already has this label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api, err := a.apiClient(ctx)
			if err != nil {
				return err
			}
			e, err := a.entities(ctx, a.sparqlClient())
			if err != nil {
				return err
			}
			exprs, err := claimexpr.ParseAll(claims, e)
			if err != nil {
				return err
			}
			extra, err := claimexpr.Claims(exprs)
			if err != nil {
				return err
			}
			id, err := bootstrap.New(api, a.logger).EnsureProducer(ctx, e, args[0], extra...)
			if err != nil {
				return fmt.Errorf("create producer %q: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	create.Flags().StringArrayVar(&claims, "claim", nil, claimHelp)

	cmd.AddCommand(create)
	return cmd
}

func entitiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Search and create arbitrary entities",
	}

	var searchClaims []string
	search := &cobra.Command{
		Use:   "search",
		Short: "Print the ids of the entities matching every claim",
		Long: `Print the ids of the entities matching every claim. Besides properties,
prefixed predicates can be used, e.g. "rdfs:label=Bus 42".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sparql := a.sparqlClient()
			e, err := a.entities(ctx, sparql)
			if err != nil {
				return err
			}
			exprs, err := claimexpr.ParseAll(searchClaims, e)
			if err != nil {
				return err
			}
			ids, err := topo.NewQuery(sparql, nil, e, a.logger).Search(ctx, exprs)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	search.Flags().StringArrayVar(&searchClaims, "claim", nil, claimHelp)

	var (
		typ          string
		uniqueClaims []string
		claims       []string
	)
	create := &cobra.Command{
		Use:   "create <label>",
		Short: "Create an entity, unless one already has this label and the unique claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := entitySpec(typ, args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sparql := a.sparqlClient()
			api, err := a.apiClient(ctx)
			if err != nil {
				return err
			}
			e, err := a.entities(ctx, sparql)
			if err != nil {
				return err
			}
			unique, err := claimexpr.ParseAll(uniqueClaims, e)
			if err != nil {
				return err
			}
			extra, err := claimexpr.ParseAll(claims, e)
			if err != nil {
				return err
			}
			if spec.Claims, err = claimexpr.Claims(extra); err != nil {
				return err
			}
			store := &topo.Store{
				Query:  topo.NewQuery(sparql, api, e, a.logger),
				Writer: topo.NewWriter(api, e, version, a.logger),
			}
			id, _, err := store.CreateUnique(ctx, spec, unique)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	create.Flags().StringVarP(&typ, "type", "t", "", "Entity type: item, string-property, item-property or url-property")
	create.Flags().StringArrayVarP(&uniqueClaims, "unique-claim", "u", nil, "Like --claim, also used to check the entity does not exist yet")
	create.Flags().StringArrayVar(&claims, "claim", nil, claimHelp)
	_ = create.MarkFlagRequired("type")

	cmd.AddCommand(search, create)
	return cmd
}

// entitySpec maps a --type value to the kind of entity to create.
func entitySpec(typ, label string) (wikibase.EntitySpec, error) {
	spec := wikibase.EntitySpec{Label: label}
	switch strings.ToLower(typ) {
	case "item":
		spec.Type = wikibase.ItemEntity
	case "string-property", "stringproperty":
		spec.Type, spec.DataType = wikibase.PropertyEntity, wikibase.DataTypeString
	case "item-property", "itemproperty":
		spec.Type, spec.DataType = wikibase.PropertyEntity, wikibase.DataTypeItem
	case "url-property", "urlproperty":
		spec.Type, spec.DataType = wikibase.PropertyEntity, wikibase.DataTypeURL
	default:
		return spec, fmt.Errorf("unknown entity type %q, expected item, string-property, item-property or url-property", typ)
	}
	return spec, nil
}
