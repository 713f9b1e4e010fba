package protocol

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"feedprobe/internal/feed"
)

type edmxDocument struct {
	XMLName      xml.Name `xml:"Edmx"`
	DataServices struct {
		DataServiceVersion string       `xml:"DataServiceVersion,attr"`
		Schemas            []edmxSchema `xml:"Schema"`
	} `xml:"DataServices"`
}

type edmxSchema struct {
	Namespace  string          `xml:"Namespace,attr"`
	Containers []edmxContainer `xml:"EntityContainer"`
}

type edmxContainer struct {
	Name       string `xml:"Name,attr"`
	EntitySets []struct {
		Name string `xml:"Name,attr"`
	} `xml:"EntitySet"`
	FunctionImports []struct {
		Name string `xml:"Name,attr"`
	} `xml:"FunctionImport"`
}

// DecodeMetadata parses an EDMX $metadata document
func DecodeMetadata(r io.Reader) (*feed.Metadata, error) {
	var doc edmxDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrDecode, err)
	}

	md := &feed.Metadata{
		DataServiceVersion: doc.DataServices.DataServiceVersion,
	}

	for _, schema := range doc.DataServices.Schemas {
		if md.SchemaNamespace == "" && len(schema.Containers) > 0 {
			md.SchemaNamespace = schema.Namespace
		}
		for _, c := range schema.Containers {
			for _, set := range c.EntitySets {
				md.EntitySets = append(md.EntitySets, set.Name)
			}
			for _, fn := range c.FunctionImports {
				md.FunctionImports = append(md.FunctionImports, fn.Name)
			}
		}
	}
	if md.SchemaNamespace == "" && len(doc.DataServices.Schemas) > 0 {
		md.SchemaNamespace = doc.DataServices.Schemas[0].Namespace
	}

	return md, nil
}

// EncodeMetadata writes a minimal EDMX document describing md
func EncodeMetadata(w io.Writer, md feed.Metadata) error {
	var b strings.Builder

	b.WriteString(xml.Header)
	b.WriteString(`<edmx:Edmx Version="1.0" xmlns:edmx="http://schemas.microsoft.com/ado/2007/06/edmx">`)
	fmt.Fprintf(&b, `<edmx:DataServices xmlns:m="%s" m:DataServiceVersion="%s">`, MetaNamespace, escape(md.DataServiceVersion))
	fmt.Fprintf(&b, `<Schema Namespace="%s" xmlns="http://schemas.microsoft.com/ado/2006/04/edm">`, escape(md.SchemaNamespace))
	fmt.Fprintf(&b, `<EntityContainer Name="%sContainer" m:IsDefaultEntityContainer="true">`, escape(md.SchemaNamespace))
	for _, set := range md.EntitySets {
		fmt.Fprintf(&b, `<EntitySet Name="%s" EntityType="%s.V2FeedPackage"/>`, escape(set), escape(md.SchemaNamespace))
	}
	for _, fn := range md.FunctionImports {
		fmt.Fprintf(&b, `<FunctionImport Name="%s" EntitySet="Packages" ReturnType="Collection(%s.V2FeedPackage)" m:HttpMethod="GET"/>`,
			escape(fn), escape(md.SchemaNamespace))
	}
	b.WriteString(`</EntityContainer></Schema></edmx:DataServices></edmx:Edmx>`)

	_, err := io.WriteString(w, b.String())
	return err
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
