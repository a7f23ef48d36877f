// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package nbfx

import "fmt"

// NodeType is the one byte record tag that
// starts every binary XML record.
type NodeType uint8

const (
	EndElement NodeType = 0x01
	Comment    NodeType = 0x02
	Array      NodeType = 0x03

	ShortAttribute             NodeType = 0x04
	Attribute                  NodeType = 0x05
	ShortDictionaryAttribute   NodeType = 0x06
	DictionaryAttribute        NodeType = 0x07
	ShortXmlnsAttribute        NodeType = 0x08
	XmlnsAttribute             NodeType = 0x09
	ShortDictionaryXmlns       NodeType = 0x0A
	DictionaryXmlns            NodeType = 0x0B
	PrefixDictionaryAttributeA NodeType = 0x0C
	PrefixDictionaryAttributeZ NodeType = 0x25
	PrefixAttributeA           NodeType = 0x26
	PrefixAttributeZ           NodeType = 0x3F

	ShortElement             NodeType = 0x40
	Element                  NodeType = 0x41
	ShortDictionaryElement   NodeType = 0x42
	DictionaryElement        NodeType = 0x43
	PrefixDictionaryElementA NodeType = 0x44
	PrefixDictionaryElementZ NodeType = 0x5D
	PrefixElementA           NodeType = 0x5E
	PrefixElementZ           NodeType = 0x77

	// text records; each has a ...WithEndElement
	// form at tag+1
	ZeroText            NodeType = 0x80
	OneText             NodeType = 0x82
	FalseText           NodeType = 0x84
	TrueText            NodeType = 0x86
	Int8Text            NodeType = 0x88
	Int16Text           NodeType = 0x8A
	Int32Text           NodeType = 0x8C
	Int64Text           NodeType = 0x8E
	FloatText           NodeType = 0x90
	DoubleText          NodeType = 0x92
	DecimalText         NodeType = 0x94
	DateTimeText        NodeType = 0x96
	Chars8Text          NodeType = 0x98
	Chars16Text         NodeType = 0x9A
	Chars32Text         NodeType = 0x9C
	Bytes8Text          NodeType = 0x9E
	Bytes16Text         NodeType = 0xA0
	Bytes32Text         NodeType = 0xA2
	StartListText       NodeType = 0xA4
	EndListText         NodeType = 0xA6
	EmptyText           NodeType = 0xA8
	DictionaryText      NodeType = 0xAA
	UniqueIDText        NodeType = 0xAC
	TimeSpanText        NodeType = 0xAE
	GUIDText            NodeType = 0xB0
	UInt64Text          NodeType = 0xB2
	BoolText            NodeType = 0xB4
	UnicodeChars8Text   NodeType = 0xB6
	UnicodeChars16Text  NodeType = 0xB8
	UnicodeChars32Text  NodeType = 0xBA
	QNameDictionaryText NodeType = 0xBC

	// MaxNodeType is QNameDictionaryTextWithEndElement.
	MaxNodeType NodeType = 0xBD
)

// IsText reports whether t is a text record
// (with or without a trailing end element).
func (t NodeType) IsText() bool {
	return t >= ZeroText && t <= MaxNodeType
}

// HasEndElement reports whether t is the
// ...WithEndElement form of a text record.
func (t NodeType) HasEndElement() bool {
	return t.IsText() && t&1 == 1
}

// Base strips the end element bit from
// a text record tag. Other tags are
// returned unchanged.
func (t NodeType) Base() NodeType {
	if t.IsText() {
		return t &^ 1
	}
	return t
}

// IsElement reports whether t starts an element.
func (t NodeType) IsElement() bool {
	return t >= ShortElement && t <= PrefixElementZ
}

// IsAttribute reports whether t is an attribute
// or namespace declaration record.
func (t NodeType) IsAttribute() bool {
	return t >= ShortAttribute && t <= PrefixAttributeZ
}

// IsXmlns reports whether t declares a namespace.
func (t NodeType) IsXmlns() bool {
	return t >= ShortXmlnsAttribute && t <= DictionaryXmlns
}

// Letter returns the prefix letter index (0 for 'a')
// of the single-letter element and attribute forms,
// or -1 if t is not a single-letter form.
func (t NodeType) Letter() int {
	switch {
	case t >= PrefixDictionaryAttributeA && t <= PrefixDictionaryAttributeZ:
		return int(t - PrefixDictionaryAttributeA)
	case t >= PrefixAttributeA && t <= PrefixAttributeZ:
		return int(t - PrefixAttributeA)
	case t >= PrefixDictionaryElementA && t <= PrefixDictionaryElementZ:
		return int(t - PrefixDictionaryElementA)
	case t >= PrefixElementA && t <= PrefixElementZ:
		return int(t - PrefixElementA)
	}
	return -1
}

// ArrayItemWidth returns the fixed width of one
// array item of text type t, or 0 if t cannot
// be used in an Array record.
func (t NodeType) ArrayItemWidth() int {
	switch t.Base() {
	case BoolText, Int8Text:
		return 1
	case Int16Text:
		return 2
	case Int32Text, FloatText:
		return 4
	case Int64Text, DoubleText, DateTimeText, TimeSpanText:
		return 8
	case DecimalText, GUIDText, UniqueIDText:
		return 16
	}
	return 0
}

var nodeTypeNames [256]string

func init() {
	fixed := map[NodeType]string{
		EndElement:               "EndElement",
		Comment:                  "Comment",
		Array:                    "Array",
		ShortAttribute:           "ShortAttribute",
		Attribute:                "Attribute",
		ShortDictionaryAttribute: "ShortDictionaryAttribute",
		DictionaryAttribute:      "DictionaryAttribute",
		ShortXmlnsAttribute:      "ShortXmlnsAttribute",
		XmlnsAttribute:           "XmlnsAttribute",
		ShortDictionaryXmlns:     "ShortDictionaryXmlnsAttribute",
		DictionaryXmlns:          "DictionaryXmlnsAttribute",
		ShortElement:             "ShortElement",
		Element:                  "Element",
		ShortDictionaryElement:   "ShortDictionaryElement",
		DictionaryElement:        "DictionaryElement",
		ZeroText:                 "ZeroText",
		OneText:                  "OneText",
		FalseText:                "FalseText",
		TrueText:                 "TrueText",
		Int8Text:                 "Int8Text",
		Int16Text:                "Int16Text",
		Int32Text:                "Int32Text",
		Int64Text:                "Int64Text",
		FloatText:                "FloatText",
		DoubleText:               "DoubleText",
		DecimalText:              "DecimalText",
		DateTimeText:             "DateTimeText",
		Chars8Text:               "Chars8Text",
		Chars16Text:              "Chars16Text",
		Chars32Text:              "Chars32Text",
		Bytes8Text:               "Bytes8Text",
		Bytes16Text:              "Bytes16Text",
		Bytes32Text:              "Bytes32Text",
		StartListText:            "StartListText",
		EndListText:              "EndListText",
		EmptyText:                "EmptyText",
		DictionaryText:           "DictionaryText",
		UniqueIDText:             "UniqueIdText",
		TimeSpanText:             "TimeSpanText",
		GUIDText:                 "GuidText",
		UInt64Text:               "UInt64Text",
		BoolText:                 "BoolText",
		UnicodeChars8Text:        "UnicodeChars8Text",
		UnicodeChars16Text:       "UnicodeChars16Text",
		UnicodeChars32Text:       "UnicodeChars32Text",
		QNameDictionaryText:      "QNameDictionaryText",
	}
	for t, name := range fixed {
		nodeTypeNames[t] = name
		if t.IsText() {
			nodeTypeNames[t+1] = name + "WithEndElement"
		}
	}
	for i := 0; i < 26; i++ {
		l := string(rune('A' + i))
		nodeTypeNames[PrefixDictionaryAttributeA+NodeType(i)] = "PrefixDictionaryAttribute" + l
		nodeTypeNames[PrefixAttributeA+NodeType(i)] = "PrefixAttribute" + l
		nodeTypeNames[PrefixDictionaryElementA+NodeType(i)] = "PrefixDictionaryElement" + l
		nodeTypeNames[PrefixElementA+NodeType(i)] = "PrefixElement" + l
	}
}

// Defined reports whether t is a known record tag.
func (t NodeType) Defined() bool {
	return nodeTypeNames[t] != ""
}

func (t NodeType) String() string {
	if s := nodeTypeNames[t]; s != "" {
		return s
	}
	return fmt.Sprintf("NodeType(0x%02x)", uint8(t))
}
