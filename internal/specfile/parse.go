package specfile

import (
	"encoding/xml"
	"io"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/namespace"
)

// xmlMap mirrors the on-wire schema:
//
//	<Map>
//	  <Config><AnyTag>value</AnyTag>...</Config>
//	  <Pair reval="1h"><File perm="444">/a/b</File><Query type="db">str</Query></Pair>
//	  <Pair reval="1h"><Dir perm="555">/a</Dir></Pair>
//	  ...
//	</Map>
//
// Config's children are arbitrary tag names , so it gets a hand-rolled
// UnmarshalXML rather than a struct-tag mapping.
type xmlMap struct {
	XMLName xml.Name  `xml:"Map"`
	Config  xmlConfig `xml:"Config"`
	Pairs   []xmlPair `xml:"Pair"`
}

type xmlConfig struct {
	Entries map[string]string
}

func (c *xmlConfig) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	c.Entries = map[string]string{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := dec.DecodeElement(&text, &t); err != nil {
				return err
			}
			c.Entries[t.Name.Local] = text
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

type xmlPair struct {
	Reval string    `xml:"reval,attr"`
	Dir   *xmlPath  `xml:"Dir"`
	File  *xmlPath  `xml:"File"`
	Query *xmlQuery `xml:"Query"`
}

type xmlPath struct {
	Perm string `xml:"perm,attr"`
	Path string `xml:",chardata"`
}

type xmlQuery struct {
	Type   string `xml:"type,attr"`
	String string `xml:",chardata"`
}

// Parse decodes a specfile from r into the object model, validating every
// field the object model requires (permission octal digits with no write
// bit, the reval duration grammar, exactly one of Dir/File per pair, and a
// Query on every File). Parse failures are always structural:
// a bad specfile must never touch the live namespace.
func Parse(r io.Reader) (*Doc, error) {
	var x xmlMap
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&x); err != nil {
		return nil, cmn.Wrap(err, "specfile: decode")
	}

	doc := &Doc{Config: x.Config.Entries}
	if doc.Config == nil {
		doc.Config = map[string]string{}
	}

	doc.Pairs = make([]Pair, 0, len(x.Pairs))
	for _, xp := range x.Pairs {
		var typ namespace.EntryType
		var xpath *xmlPath
		switch {
		case xp.Dir != nil && xp.File == nil:
			typ, xpath = namespace.Dir, xp.Dir
		case xp.File != nil && xp.Dir == nil:
			typ, xpath = namespace.File, xp.File
		default:
			return nil, cmn.Wrapf(cmn.ErrStructural, "specfile: pair must have exactly one of <Dir> or <File>")
		}
		if xpath.Path == "" {
			return nil, cmn.Wrapf(cmn.ErrStructural, "specfile: pair has empty path")
		}

		perm, err := cmn.ParseOctal(xpath.Perm)
		if err != nil {
			return nil, cmn.Wrapf(err, "specfile: pair %q perm", xpath.Path)
		}

		var revalSec int64
		if xp.Reval != "" {
			d, err := cmn.ParseRevalDuration(xp.Reval)
			if err != nil {
				return nil, cmn.Wrapf(err, "specfile: pair %q reval", xpath.Path)
			}
			revalSec = int64(d.Seconds())
		}

		p := Pair{Path: xpath.Path, Type: typ, Perm: perm, RevalSec: revalSec}
		if xp.Query != nil {
			p.QueryType, p.QueryString = xp.Query.Type, xp.Query.String
		} else if typ == namespace.File {
			return nil, cmn.Wrapf(cmn.ErrStructural, "specfile: file pair %q missing <Query>", xpath.Path)
		}
		doc.Pairs = append(doc.Pairs, p)
	}
	return doc, nil
}
