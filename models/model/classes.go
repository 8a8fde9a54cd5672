package model

import "fmt"

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// ClassSet ties a family to its full list of labels, background first.
type ClassSet struct {
	// Class set identifier.
	Style Family
	// Classes that are supported and mappable.
	Classes []OutputClass
}

// Len returns the number of classes including background.
func (s *ClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the label for idx, or "class_<idx>" when idx is out of range.
func (s *ClassSet) Name(idx int) string {
	if idx < 0 || idx >= len(s.Classes) {
		return fmt.Sprintf("class_%d", idx)
	}
	return s.Classes[idx].Name
}

func newClassSet(style Family, names ...string) *ClassSet {
	classes := make([]OutputClass, len(names))
	for i, name := range names {
		classes[i] = OutputClass{Index: i, Name: name}
	}
	return &ClassSet{Style: style, Classes: classes}
}

// VIDClasses is the 30 ImageNet VID classes plus "__background__" at index 0.
var VIDClasses = newClassSet(ModelFamilyVID,
	"__background__",
	"airplane", "antelope", "bear", "bicycle",
	"bird", "bus", "car", "cattle",
	"dog", "domestic_cat", "elephant", "fox",
	"giant_panda", "hamster", "horse", "lion",
	"lizard", "monkey", "motorcycle", "rabbit",
	"red_panda", "sheep", "snake", "squirrel",
	"tiger", "train", "turtle", "watercraft",
	"whale", "zebra",
)

// PascalVOCClasses is the 20 Pascal VOC classes + "__background__" at index 0.
var PascalVOCClasses = newClassSet(ModelFamilyVOC,
	"__background__",
	"aeroplane", "bicycle", "bird", "boat",
	"bottle", "bus", "car", "cat",
	"chair", "cow", "diningtable", "dog",
	"horse", "motorbike", "person", "pottedplant",
	"sheep", "sofa", "train", "tvmonitor",
)

// AllClassSets collects every ClassSet in one place.
var AllClassSets = []*ClassSet{
	VIDClasses,
	PascalVOCClasses,
}

// LookupName returns the class name for a given style and index.
// If the style is unknown or index is out of range, it returns an empty string.
func LookupName(style Family, idx int) string {
	for _, set := range AllClassSets {
		if set.Style == style {
			if idx >= 0 && idx < len(set.Classes) {
				return set.Classes[idx].Name
			}
			return ""
		}
	}
	return ""
}
