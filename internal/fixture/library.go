// Package fixture provides a hand-written shard in the shape shard code
// generation produces. Tests across the module use it as a typed model.
package fixture

import (
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/value"
)

// Entity types of the library shard.
const (
	BookType   model.EntityType = "book"
	AuthorType model.EntityType = "author"
)

// Descriptors of the library shard.
var (
	BooksInfo = model.NewCollectionInfo("library", "books", BookType, []model.FieldInfo{
		{Name: "title", Kind: value.KindString},
		{Name: "year", Kind: value.KindInt, Nullable: true},
	}, DecodeBook)

	AuthorsInfo = model.NewCollectionInfo("library", "authors", AuthorType, []model.FieldInfo{
		{Name: "name", Kind: value.KindString},
	}, DecodeAuthor)

	// WrittenInfo links authors to the books they wrote.
	WrittenInfo = &model.RelationInfo{
		Shard:       "library",
		Name:        "written",
		Parent:      AuthorType,
		Child:       BookType,
		Cardinality: model.ManyToMany,
	}

	// SequelInfo links a book to its direct sequel.
	SequelInfo = &model.RelationInfo{
		Shard:       "library",
		Name:        "sequel",
		Parent:      BookType,
		Child:       BookType,
		Cardinality: model.OneToOne,
	}

	LibraryInfo = model.NewShardInfo("library", BooksInfo, AuthorsInfo, WrittenInfo, SequelInfo)
)

// Book is the properties of a book. A zero Year means unknown.
type Book struct {
	Title string
	Year  int64
}

func (b Book) Equal(other model.Properties) bool {
	o, ok := other.(Book)
	return ok && o == b
}

func (b Book) Bag() value.Object {
	bag := value.Object{"title": value.String(b.Title)}
	if b.Year != 0 {
		bag["year"] = value.Int(b.Year)
	}
	return bag
}

// DecodeBook converts a validated bag into a Book.
func DecodeBook(bag value.Object) (Book, error) {
	title, err := bag.GetString("title")
	if err != nil {
		return Book{}, err
	}
	b := Book{Title: title}
	if _, ok := bag.Get("year"); ok {
		if b.Year, err = bag.GetInt("year"); err != nil {
			return Book{}, err
		}
	}
	return b, nil
}

// Author is the properties of an author.
type Author struct {
	Name string
}

func (a Author) Equal(other model.Properties) bool {
	o, ok := other.(Author)
	return ok && o == a
}

func (a Author) Bag() value.Object {
	return value.Object{"name": value.String(a.Name)}
}

// DecodeAuthor converts a validated bag into an Author.
func DecodeAuthor(bag value.Object) (Author, error) {
	name, err := bag.GetString("name")
	if err != nil {
		return Author{}, err
	}
	return Author{Name: name}, nil
}

// Library is the read-only library shard.
type Library struct {
	Books   *model.Collection[Book]
	Authors *model.Collection[Author]
	Written *model.Relation
	Sequel  *model.Relation
}

// NewLibrary creates an empty library shard.
func NewLibrary() *Library {
	return &Library{
		Books:   model.NewCollection[Book](BooksInfo),
		Authors: model.NewCollection[Author](AuthorsInfo),
		Written: model.NewRelation(WrittenInfo),
		Sequel:  model.NewRelation(SequelInfo),
	}
}

func (l *Library) Info() *model.ShardInfo { return LibraryInfo }

func (l *Library) Members() []model.Member {
	return []model.Member{l.Books, l.Authors, l.Written, l.Sequel}
}

func (l *Library) Mutable(d *model.Decorator) model.MutableShard {
	return &MutableLibrary{
		Books:   l.Books.Mutable(d),
		Authors: l.Authors.Mutable(d),
		Written: l.Written.Mutable(d),
		Sequel:  l.Sequel.Mutable(d),
	}
}

// MutableLibrary is the mutable library shard.
type MutableLibrary struct {
	Books   *model.MutableCollection[Book]
	Authors *model.MutableCollection[Author]
	Written *model.MutableRelation
	Sequel  *model.MutableRelation
}

func (l *MutableLibrary) Info() *model.ShardInfo { return LibraryInfo }

func (l *MutableLibrary) Members() []model.MutableMember {
	return []model.MutableMember{l.Books, l.Authors, l.Written, l.Sequel}
}

func (l *MutableLibrary) Freeze() model.Shard {
	return &Library{
		Books:   l.Books.Freeze(),
		Authors: l.Authors.Freeze(),
		Written: l.Written.Freeze(),
		Sequel:  l.Sequel.Freeze(),
	}
}

// NewModel returns a model holding one empty library shard.
func NewModel() *model.Model {
	m, err := model.New(NewLibrary())
	if err != nil {
		panic(err)
	}
	return m
}

// NewRegistry returns a registry of the library shard.
func NewRegistry() *model.Registry {
	reg, err := model.NewRegistry(NewLibrary())
	if err != nil {
		panic(err)
	}
	return reg
}

// Edit returns the mutable library of a snapshot.
func Edit(s *model.Snapshot) (*MutableLibrary, error) {
	return model.Edit[*MutableLibrary](s, LibraryInfo)
}

// Read returns the library of a model.
func Read(m *model.Model) (*Library, error) {
	return model.Read[*Library](m, LibraryInfo)
}
